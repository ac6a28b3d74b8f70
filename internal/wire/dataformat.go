package wire

import "fmt"

// DataFormat names the supported combinations of content types and column
// resolutions a client can request.
type DataFormat int

const (
	// FormatXYBrightnessFull requests geometry and brightness at every
	// column.
	FormatXYBrightnessFull DataFormat = iota
	// FormatXYBrightnessHalf requests geometry and brightness at every
	// second column.
	FormatXYBrightnessHalf
	// FormatXYBrightnessQuarter requests geometry and brightness at every
	// fourth column.
	FormatXYBrightnessQuarter
	// FormatXYFull requests geometry only at every column.
	FormatXYFull
	// FormatXYHalf requests geometry only at every second column.
	FormatXYHalf
	// FormatXYQuarter requests geometry only at every fourth column.
	FormatXYQuarter
)

// Layout returns the content-type mask and per-type column steps for the
// format. Steps are ordered by ascending content-type bit.
func (f DataFormat) Layout() (DataType, []uint16, error) {
	switch f {
	case FormatXYBrightnessFull:
		return DataTypeBrightness | DataTypeXY, []uint16{1, 1}, nil
	case FormatXYBrightnessHalf:
		return DataTypeBrightness | DataTypeXY, []uint16{2, 2}, nil
	case FormatXYBrightnessQuarter:
		return DataTypeBrightness | DataTypeXY, []uint16{4, 4}, nil
	case FormatXYFull:
		return DataTypeXY, []uint16{1}, nil
	case FormatXYHalf:
		return DataTypeXY, []uint16{2}, nil
	case FormatXYQuarter:
		return DataTypeXY, []uint16{4}, nil
	default:
		return 0, nil, fmt.Errorf("wire: unknown data format %d", f)
	}
}

func (f DataFormat) String() string {
	switch f {
	case FormatXYBrightnessFull:
		return "xy+brightness/full"
	case FormatXYBrightnessHalf:
		return "xy+brightness/half"
	case FormatXYBrightnessQuarter:
		return "xy+brightness/quarter"
	case FormatXYFull:
		return "xy/full"
	case FormatXYHalf:
		return "xy/half"
	case FormatXYQuarter:
		return "xy/quarter"
	default:
		return fmt.Sprintf("dataformat(%d)", int(f))
	}
}
