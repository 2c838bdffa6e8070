package util

import (
	"fmt"
	"math"
	"math/cmplx"
)

func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	switch {
	case absValue >= 1e6:
		return fmt.Sprintf("%.3f M%s", value/1e6, unit)
	case absValue >= 1e3:
		return fmt.Sprintf("%.3f k%s", value/1e3, unit)
	case absValue >= 1 || absValue == 0:
		return fmt.Sprintf("%.3f %s", value, unit)
	case absValue >= 1e-3:
		return fmt.Sprintf("%.3f m%s", value*1e3, unit)
	case absValue >= 1e-6:
		return fmt.Sprintf("%.3f u%s", value*1e6, unit)
	default:
		return fmt.Sprintf("%.3e %s", value, unit)
	}
}

// FormatPhasor prints v as magnitude and angle in degrees.
func FormatPhasor(name string, v complex128) string {
	mag, phase := cmplx.Abs(v), cmplx.Phase(v)*180/math.Pi
	return fmt.Sprintf("%s=%s<%sdeg", name, FormatMagnitude(mag), FormatPhase(phase))
}

func FormatMagnitude(value float64) string {
	if value >= 1000 || (value < 0.001 && value != 0) {
		return fmt.Sprintf("%8.2e", value)
	}
	return fmt.Sprintf("%8.3g", value)
}

func FormatPhase(value float64) string {
	return fmt.Sprintf("%6.1f", value)
}
