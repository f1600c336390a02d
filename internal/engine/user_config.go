package engine

import "time"

// Seasonal default room temperatures (°C). Dec-Feb is winter.
const (
	springOptimalTempC = 21.0
	summerOptimalTempC = 20.0
	autumnOptimalTempC = 21.0
	winterOptimalTempC = 22.0
)

// UserConfig 住户的热舒适偏好配置
//
// Holds the live comfort target and the rollback/feedback state. One
// instance per engine, created at construction and mutated by explicit
// user preference submissions and by the engine's recalibration step.
type UserConfig struct {
	optimalRoomTempC         float64
	rollbackOptimalRoomTempC *float64
	hasUserSetOptimal        bool
	lastFeedback             *int
}

// NewUserConfig creates a user config. With an explicit temperature the
// user-set flag is raised and seasonal auto-adjustment stops; otherwise
// the target derives from the current month's season.
func NewUserConfig(explicitTempC *float64) *UserConfig {
	c := &UserConfig{}
	if explicitTempC != nil {
		c.optimalRoomTempC = *explicitTempC
		c.hasUserSetOptimal = true
	} else {
		c.optimalRoomTempC = seasonalRoomTemp(time.Now().Month())
	}
	return c
}

// seasonalRoomTemp maps a calendar month to the season's default target.
// The month-to-season mapping is closed and non-overlapping.
func seasonalRoomTemp(month time.Month) float64 {
	switch month {
	case time.March, time.April, time.May:
		return springOptimalTempC
	case time.June, time.July, time.August:
		return summerOptimalTempC
	case time.September, time.October, time.November:
		return autumnOptimalTempC
	default: // December, January, February
		return winterOptimalTempC
	}
}

// OptimalRoomTempC returns the live comfort target.
func (c *UserConfig) OptimalRoomTempC() float64 {
	return c.optimalRoomTempC
}

// RollbackOptimalRoomTempC returns the previous target, or nil.
func (c *UserConfig) RollbackOptimalRoomTempC() *float64 {
	return c.rollbackOptimalRoomTempC
}

// HasUserSetOptimal reports whether seasonal auto-adjustment has stopped.
func (c *UserConfig) HasUserSetOptimal() bool {
	return c.hasUserSetOptimal
}

// ApplyUserPreference saves the current target into the rollback slot and
// applies the new one. The engine's recalibration step routes through here
// as well, so the rollback point moves on every recalibrating cycle, not
// only on explicit user edits.
func (c *UserConfig) ApplyUserPreference(newTempC float64) {
	prev := c.optimalRoomTempC
	c.rollbackOptimalRoomTempC = &prev
	c.optimalRoomTempC = newTempC
	c.hasUserSetOptimal = true
}

// RefreshSeasonalDefault recomputes the target from the current month.
// No-op once the user has set an explicit preference. Called once per
// decision cycle so the default tracks season drift without user input.
func (c *UserConfig) RefreshSeasonalDefault() {
	if c.hasUserSetOptimal {
		return
	}
	c.optimalRoomTempC = seasonalRoomTemp(time.Now().Month())
}

// Rollback swaps the live target with the rollback slot.
func (c *UserConfig) Rollback() error {
	if c.rollbackOptimalRoomTempC == nil {
		return ErrNoRollbackAvailable
	}
	prev := c.optimalRoomTempC
	c.optimalRoomTempC = *c.rollbackOptimalRoomTempC
	c.rollbackOptimalRoomTempC = &prev
	return nil
}
