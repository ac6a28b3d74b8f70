package wire

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Version flag bits reported by a scan head.
const (
	VersionFlagDirty   uint16 = 1 << 0
	VersionFlagDevelop uint16 = 1 << 1
)

// VersionInformationSize is the serialized length of VersionInformation.
const VersionInformationSize = 20

// VersionInformation identifies the firmware running on a scan head. The
// layout is frozen so version mismatches can always be decoded.
type VersionInformation struct {
	Major   uint32
	Minor   uint32
	Patch   uint32
	Commit  uint32
	Product uint16
	Flags   uint16
}

// String renders the semantic version, e.g. "2.11.2-dirty-develop+1234abcd".
func (v VersionInformation) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Flags&VersionFlagDirty != 0 {
		sb.WriteString("-dirty")
	}
	if v.Flags&VersionFlagDevelop != 0 {
		sb.WriteString("-develop")
	}
	fmt.Fprintf(&sb, "+%x", v.Commit)
	return sb.String()
}

// Compatible reports whether two versions can interoperate. Versions sharing
// a major number are compatible even when the minor numbers differ.
func (v VersionInformation) Compatible(other VersionInformation) bool {
	return v.Major == other.Major
}

func (v VersionInformation) appendTo(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, v.Major)
	buf = binary.BigEndian.AppendUint32(buf, v.Minor)
	buf = binary.BigEndian.AppendUint32(buf, v.Patch)
	buf = binary.BigEndian.AppendUint32(buf, v.Commit)
	buf = binary.BigEndian.AppendUint16(buf, v.Product)
	buf = binary.BigEndian.AppendUint16(buf, v.Flags)
	return buf
}

func parseVersionInformation(buf []byte) (VersionInformation, error) {
	if len(buf) < VersionInformationSize {
		return VersionInformation{}, fmt.Errorf("%w: %d bytes, need %d for version", ErrDecode, len(buf), VersionInformationSize)
	}
	return VersionInformation{
		Major:   binary.BigEndian.Uint32(buf[0:4]),
		Minor:   binary.BigEndian.Uint32(buf[4:8]),
		Patch:   binary.BigEndian.Uint32(buf[8:12]),
		Commit:  binary.BigEndian.Uint32(buf[12:16]),
		Product: binary.BigEndian.Uint16(buf[16:18]),
		Flags:   binary.BigEndian.Uint16(buf[18:20]),
	}, nil
}
