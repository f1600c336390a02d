package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.uber.org/zap"
)

func newRecalibrationEngine(t *testing.T, targetTempC float64) *Engine {
	t.Helper()
	return NewEngine("room-1", nil, nil, NewUserConfig(&targetTempC), Options{}, zap.NewNop())
}

func TestAshraeValue_TruncatesTowardZero(t *testing.T) {
	e := newRecalibrationEngine(t, 22.0)

	assert.Equal(t, 0, e.ashraeValue(22.0))
	assert.Equal(t, 2, e.ashraeValue(26.0))
	assert.Equal(t, -2, e.ashraeValue(18.0))
	// 0.5°C above target: 3*tanh(0.25) ≈ 0.73, truncates to 0.
	assert.Equal(t, 0, e.ashraeValue(22.5))
}

func TestShiftOptimalRoomTemperature_NeutralZoneRecenters(t *testing.T) {
	e := newRecalibrationEngine(t, 22.0)

	e.shiftOptimalRoomTemperature(0)

	// The neutral band is symmetric around the current target, so the
	// midpoint of the sweep lands back on it.
	assert.InDelta(t, 22.0, e.userConfig.OptimalRoomTempC(), 0.011)
}

func TestShiftOptimalRoomTemperature_WarmVoteLowersTarget(t *testing.T) {
	e := newRecalibrationEngine(t, 22.0)

	e.shiftOptimalRoomTemperature(1)

	got := e.userConfig.OptimalRoomTempC()
	assert.Less(t, got, 22.0)
	assert.GreaterOrEqual(t, got, MinRoomTempC)

	// Rollback point carries the pre-recalibration target.
	if assert.NotNil(t, e.userConfig.RollbackOptimalRoomTempC()) {
		assert.Equal(t, 22.0, *e.userConfig.RollbackOptimalRoomTempC())
	}
}

func TestShiftOptimalRoomTemperature_CoolVoteRaisesTarget(t *testing.T) {
	e := newRecalibrationEngine(t, 22.0)

	e.shiftOptimalRoomTemperature(-1)

	got := e.userConfig.OptimalRoomTempC()
	assert.Greater(t, got, 22.0)
	assert.LessOrEqual(t, got, MaxRoomTempC)
}

func TestShiftOptimalRoomTemperature_ZoneOutsideDomain(t *testing.T) {
	// With the target at the domain floor, a hot vote asks for scores in
	// [-3,-2], which no temperature in [18,26] can reach. The target must
	// stay untouched.
	e := newRecalibrationEngine(t, 18.0)

	e.shiftOptimalRoomTemperature(2)

	assert.Equal(t, 18.0, e.userConfig.OptimalRoomTempC())
	assert.Nil(t, e.userConfig.RollbackOptimalRoomTempC())
}

func TestShiftOptimalRoomTemperature_UnknownZone(t *testing.T) {
	e := newRecalibrationEngine(t, 22.0)

	e.shiftOptimalRoomTemperature(5)

	assert.Equal(t, 22.0, e.userConfig.OptimalRoomTempC())
}
