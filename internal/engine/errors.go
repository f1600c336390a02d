package engine

import "errors"

// Caller-facing error conditions. Actuator and persistence failures are
// absent here: those are logged inside the decision cycle and never
// surfaced to the caller.
var (
	// ErrEmptyHistory - 传感器历史为空，无法决策
	ErrEmptyHistory = errors.New("no sensor history available")

	// ErrNoPriorDecision - 没有可回滚的决策
	ErrNoPriorDecision = errors.New("no prior decision to roll back")

	// ErrNoRollbackAvailable - 用户配置中没有可回滚的目标温度
	ErrNoRollbackAvailable = errors.New("no rollback room temperature available")

	// ErrInvalidPreference - 非法的目标温度输入
	ErrInvalidPreference = errors.New("invalid room temperature preference")
)
