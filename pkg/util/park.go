package util

import (
	"math"
)

// ParkTransform maps abc to dq0 with amplitude scaling 2/3. The d axis is
// aligned with phase a at theta = 0.
func ParkTransform(theta float64, abc [3]float64) [3]float64 {
	b, c := theta-2*math.Pi/3, theta+2*math.Pi/3
	return [3]float64{
		2.0 / 3.0 * (math.Cos(theta)*abc[0] + math.Cos(b)*abc[1] + math.Cos(c)*abc[2]),
		-2.0 / 3.0 * (math.Sin(theta)*abc[0] + math.Sin(b)*abc[1] + math.Sin(c)*abc[2]),
		1.0 / 3.0 * (abc[0] + abc[1] + abc[2]),
	}
}

func InverseParkTransform(theta float64, dq0 [3]float64) [3]float64 {
	var abc [3]float64
	for i, shift := range []float64{0, -2 * math.Pi / 3, 2 * math.Pi / 3} {
		abc[i] = math.Cos(theta+shift)*dq0[0] - math.Sin(theta+shift)*dq0[1] + dq0[2]
	}
	return abc
}

// ParkTransformPowerInvariant uses the sqrt(2/3) scaling so that
// p = vd*id + vq*iq + v0*i0 equals the three-phase power.
func ParkTransformPowerInvariant(theta float64, abc [3]float64) [3]float64 {
	k := math.Sqrt(2.0 / 3.0)
	b, c := theta-2*math.Pi/3, theta+2*math.Pi/3
	return [3]float64{
		k * (math.Cos(theta)*abc[0] + math.Cos(b)*abc[1] + math.Cos(c)*abc[2]),
		-k * (math.Sin(theta)*abc[0] + math.Sin(b)*abc[1] + math.Sin(c)*abc[2]),
		k / math.Sqrt2 * (abc[0] + abc[1] + abc[2]),
	}
}

func InverseParkTransformPowerInvariant(theta float64, dq0 [3]float64) [3]float64 {
	k := math.Sqrt(2.0 / 3.0)
	var abc [3]float64
	for i, shift := range []float64{0, -2 * math.Pi / 3, 2 * math.Pi / 3} {
		abc[i] = k * (math.Cos(theta+shift)*dq0[0] - math.Sin(theta+shift)*dq0[1] + dq0[2]/math.Sqrt2)
	}
	return abc
}

// RotatingFrame expresses phasor v in a frame rotated by theta, which for a
// generator is the dq frame relative to the network reference.
func RotatingFrame(v complex128, theta float64) complex128 {
	return v * complex(math.Cos(-theta), math.Sin(-theta))
}

// PhasorToABC converts a single-phase RMS-like phasor into instantaneous
// balanced three-phase peak values at angle omega*t.
func PhasorToABC(v complex128, omegaT float64) [3]float64 {
	var abc [3]float64
	for i, shift := range []float64{0, -2 * math.Pi / 3, 2 * math.Pi / 3} {
		rot := v * complex(math.Cos(omegaT+shift), math.Sin(omegaT+shift))
		abc[i] = real(rot)
	}
	return abc
}
