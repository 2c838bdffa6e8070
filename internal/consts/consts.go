package consts

import "math"

const (
	SQRT3            = 1.7320508075688772
	SHIFT_TO_PHASE_B = -2 * math.Pi / 3
	SHIFT_TO_PHASE_C = 2 * math.Pi / 3
	SYSTEM_FREQUENCY = 50.0 // Hz
)
