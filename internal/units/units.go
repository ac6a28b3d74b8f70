// Package units provides shared constants and validation for distance units
package units

// Unit constants
const (
	Inches      = "in"
	Millimeters = "mm"
	Thousandths = "mils"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Inches, Millimeters, Thousandths}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "in, mm, mils"
}

// ConvertDistance converts a distance from 1/1000 inch to the target units.
// The wire protocol and all internal geometry carry 1/1000 inch.
func ConvertDistance(mils float64, targetUnits string) float64 {
	switch targetUnits {
	case Inches:
		return mils / 1000.0
	case Millimeters:
		return mils * 0.0254 // 1/1000 inch to mm
	case Thousandths:
		return mils // no conversion needed
	default:
		return mils // default to 1/1000 inch if unknown unit
	}
}

// InchesToMils converts inches to 1/1000 inch wire units.
func InchesToMils(inches float64) float64 {
	return inches * 1000.0
}
