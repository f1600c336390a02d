package engine

import "math"

const recalibrationStepC = 0.01

// comfortZoneTargetRange maps an input comfort zone to the ASHRAE-scale
// sub-range the new target should land in. A hot vote (zone 2) targets the
// cool end of the scale so the base temperature shifts downward, and vice
// versa.
var comfortZoneTargetRange = map[int][2]float64{
	-2: {2.0, 3.0},
	-1: {1.0, 2.0},
	0:  {-1.0, 1.0},
	1:  {-2.0, -1.0},
	2:  {-3.0, -2.0},
}

// shiftOptimalRoomTemperature recalibrates the comfort target around a
// reported zone. Sweeps the permissible room temperature domain in 0.01°C
// steps, keeps the candidates whose synthetic comfort score falls in the
// zone's target range, and moves the target to the midpoint of the first
// and last candidate. The midpoint is taken over the first and last entry
// of the filtered sweep even when the candidate set is non-contiguous;
// this is long-standing behavior and is kept as is. An empty candidate
// set (the zone falls entirely outside the domain) leaves the target
// unchanged. The update routes through ApplyUserPreference, so every
// recalibration also moves the rollback point.
func (e *Engine) shiftOptimalRoomTemperature(zone int) {
	targetRange, ok := comfortZoneTargetRange[zone]
	if !ok {
		return
	}

	var first, last float64
	found := false
	steps := int(math.Round((MaxRoomTempC - MinRoomTempC) / recalibrationStepC))
	for i := 0; i <= steps; i++ {
		t := MinRoomTempC + float64(i)*recalibrationStepC
		score := e.ashraeValue(t)
		if float64(score) >= targetRange[0] && float64(score) <= targetRange[1] {
			if !found {
				first = t
				found = true
			}
			last = t
		}
	}
	if !found {
		return
	}

	e.userConfig.ApplyUserPreference((first + last) / 2)
}

// ashraeValue computes the synthetic comfort score for a candidate room
// temperature: a sigmoid centered on the current target, scaled to
// roughly [-3,3] and truncated toward zero.
func (e *Engine) ashraeValue(roomTempC float64) int {
	target := e.userConfig.OptimalRoomTempC()
	return int(3 * (2/(1+math.Exp(-(roomTempC-target))) - 1))
}
