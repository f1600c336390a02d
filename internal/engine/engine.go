package engine

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/FelixMarschall/SmartHomeBioSignal/internal/actuator"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Physiological/environmental bounds for the high-level threshold pass (°C / %).
const (
	MinRoomTempC   = 18.0
	MaxRoomTempC   = 26.0
	MinSkinTempC   = 30.0
	MaxSkinTempC   = 38.0
	MinHumidityPct = 20.0
	MaxHumidityPct = 80.0
)

const (
	defaultWindowHours        = 8
	defaultClassifierLag      = 12 // records; ≈1 minute at 5 s intervals
	defaultContradictionBlock = 30 * time.Minute
)

// HistoryStore is the slice of the sensor history repository the engine
// needs: the per-day read path and the decision write-back.
type HistoryStore interface {
	RecordsForDay(ctx context.Context, roomID string, day time.Time) ([]models.FusedRecord, error)
	UpdateDecision(ctx context.Context, roomID string, ts time.Time, intent models.ActionIntent) error
}

// Options 引擎可调参数（零值使用默认配置）
type Options struct {
	WindowHours        int           // 决策窗口长度（小时）
	ClassifierLag      int           // 低层决策的分类器滞后窗口（条数）
	ContradictionBlock time.Duration // 矛盾动作抑制窗口
}

// Engine 热舒适决策引擎（每个房间一个实例）
//
// Maintains the rolling window of fused sensor history, runs the two-tier
// decision algorithm, applies the contradiction guard, and supports
// rollback of the last decision. All mutable state is guarded by one
// mutex: DecisionMaking and RollbackLastDecision never interleave on the
// same instance. Engines of different rooms share nothing.
type Engine struct {
	roomID string
	store  HistoryStore
	acts   actuator.Actuators
	logger *zap.Logger

	windowSpan         time.Duration
	classifierLag      int
	contradictionBlock time.Duration

	mu               sync.Mutex
	userConfig       *UserConfig
	window           []models.FusedRecord
	lastApplied      *models.AppliedDecision
	rollbackDecision *models.AppliedDecision
}

// NewEngine 创建决策引擎
func NewEngine(roomID string, store HistoryStore, acts actuator.Actuators, userConfig *UserConfig, opts Options, logger *zap.Logger) *Engine {
	if opts.WindowHours <= 0 {
		opts.WindowHours = defaultWindowHours
	}
	if opts.ClassifierLag <= 0 {
		opts.ClassifierLag = defaultClassifierLag
	}
	if opts.ContradictionBlock <= 0 {
		opts.ContradictionBlock = defaultContradictionBlock
	}

	return &Engine{
		roomID:             roomID,
		store:              store,
		acts:               acts,
		logger:             logger,
		windowSpan:         time.Duration(opts.WindowHours) * time.Hour,
		classifierLag:      opts.ClassifierLag,
		contradictionBlock: opts.ContradictionBlock,
		userConfig:         userConfig,
	}
}

// ApplyUserPreference sets an explicit comfort target. NaN and ±Inf are
// rejected with ErrInvalidPreference; no state is mutated on rejection.
func (e *Engine) ApplyUserPreference(tempC float64) error {
	if math.IsNaN(tempC) || math.IsInf(tempC, 0) {
		return ErrInvalidPreference
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.userConfig.ApplyUserPreference(tempC)
	e.logger.Info("Applied user room temperature preference",
		zap.String("room_id", e.roomID),
		zap.Float64("optimal_room_temp_c", tempC),
	)
	return nil
}

// OptimalRoomTempC returns the current comfort target.
func (e *Engine) OptimalRoomTempC() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userConfig.OptimalRoomTempC()
}

// LastApplied returns a copy of the most recently applied decision, or nil
// before the first completed cycle.
func (e *Engine) LastApplied() *models.AppliedDecision {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastApplied == nil {
		return nil
	}
	snapshot := *e.lastApplied
	return &snapshot
}

// DecisionMaking runs one full decision cycle: refresh the window, run the
// high-level threshold pass, fall through to the classifier/feedback pass
// when thresholds are inconclusive, suppress contradictions against the
// previous decision, trigger actuators best-effort, and persist the
// decision onto the triggering record.
func (e *Engine) DecisionMaking(ctx context.Context) (models.ActionIntent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.refreshWindow(ctx); err != nil {
		return models.ActionIntent{}, err
	}

	latest := &e.window[len(e.window)-1]

	actions := e.highLevelDecision(latest)
	e.logger.Info("Proposed high level actions",
		zap.String("room_id", e.roomID),
		zap.Any("actions", actions),
	)

	// Thresholds inconclusive on the temperature axis: refine with the
	// classifier/feedback pass. The humidity axis keeps the threshold result.
	if actions.Heat == 0 && actions.Cool == 0 {
		low := e.lowLevelDecision(latest)
		actions.Heat = low.Heat
		actions.Cool = low.Cool
		e.logger.Info("Proposed low level actions",
			zap.String("room_id", e.roomID),
			zap.Any("actions", actions),
		)
	}

	// Guard against reversing a recent decision, and keep that prior
	// decision as the rollback point.
	if prior := e.latestDecidedBefore(latest.Timestamp); prior != nil {
		actions = e.overwriteContradictingActions(actions, prior)

		priorIntent, _ := prior.Intent()
		e.rollbackDecision = &models.AppliedDecision{
			DecisionID:      uuid.NewString(),
			RoomID:          e.roomID,
			Timestamp:       prior.Timestamp,
			RoomTempC:       prior.RoomTempC,
			RoomHumidityPct: prior.RoomHumidityPct,
			Actions:         priorIntent,
		}
	}

	applied := &models.AppliedDecision{
		DecisionID:      uuid.NewString(),
		RoomID:          e.roomID,
		Timestamp:       latest.Timestamp,
		RoomTempC:       latest.RoomTempC,
		RoomHumidityPct: latest.RoomHumidityPct,
		Actions:         actions,
	}

	e.applyActions(ctx, applied)
	e.lastApplied = applied

	// Write the decision back onto the window copy so the next cycle's
	// contradiction guard sees it even before a store round-trip.
	latest.SetIntent(actions)

	if err := e.store.UpdateDecision(ctx, e.roomID, latest.Timestamp, actions); err != nil {
		// Actuators already fired; the decision stands. The gap between
		// physical state and history is logged, not repaired.
		e.logger.Error("Failed to persist decision",
			zap.String("room_id", e.roomID),
			zap.Time("record_ts", latest.Timestamp),
			zap.Error(err),
		)
	}

	return actions, nil
}

// RollbackLastDecision reapplies the decision that preceded the last one
// through the same actuator path, restores the previous comfort target,
// and persists the reverted action fields. The rollback point is consumed:
// a second rollback without an intervening DecisionMaking fails with
// ErrNoPriorDecision.
func (e *Engine) RollbackLastDecision(ctx context.Context) (models.ActionIntent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rollbackDecision == nil {
		return models.ActionIntent{}, ErrNoPriorDecision
	}

	snapshot := e.rollbackDecision
	e.rollbackDecision = nil

	e.applyActions(ctx, snapshot)
	e.lastApplied = snapshot

	if err := e.userConfig.Rollback(); err != nil {
		e.logger.Warn("No rollback room temperature to restore",
			zap.String("room_id", e.roomID),
			zap.Error(err),
		)
	}

	if len(e.window) > 0 {
		latest := &e.window[len(e.window)-1]
		latest.SetIntent(snapshot.Actions)
		if err := e.store.UpdateDecision(ctx, e.roomID, latest.Timestamp, snapshot.Actions); err != nil {
			e.logger.Error("Failed to persist rollback decision",
				zap.String("room_id", e.roomID),
				zap.Time("record_ts", latest.Timestamp),
				zap.Error(err),
			)
		}
	}

	e.logger.Info("Rolled back last decision",
		zap.String("room_id", e.roomID),
		zap.Any("actions", snapshot.Actions),
	)
	return snapshot.Actions, nil
}

// refreshWindow merges newly available records into the rolling window:
// today's records, plus yesterday's when the day boundary was crossed
// since the last refresh. Only records strictly newer than the window's
// current maximum are merged, so re-merging is idempotent. The window is
// then re-sorted and trimmed to (latest − span, latest].
func (e *Engine) refreshWindow(ctx context.Context) error {
	now := time.Now()

	if len(e.window) == 0 {
		// 冷启动：今天 + 昨天，保证窗口能跨越午夜
		yesterday, err := e.store.RecordsForDay(ctx, e.roomID, now.AddDate(0, 0, -1))
		if err != nil {
			return err
		}
		today, err := e.store.RecordsForDay(ctx, e.roomID, now)
		if err != nil {
			return err
		}
		e.window = append(yesterday, today...)
		if len(e.window) == 0 {
			return ErrEmptyHistory
		}
	} else {
		maxTS := e.window[len(e.window)-1].Timestamp

		today, err := e.store.RecordsForDay(ctx, e.roomID, now)
		if err != nil {
			return err
		}
		for _, rec := range today {
			// Feedback may land on the newest record after it was merged;
			// pick it up without re-merging the record itself.
			if rec.Timestamp.Equal(maxTS) && rec.UserFeedback != nil {
				e.window[len(e.window)-1].UserFeedback = rec.UserFeedback
			}
			if rec.Timestamp.After(maxTS) {
				e.window = append(e.window, rec)
			}
		}

		// 跨天时补读昨天的数据，避免丢失午夜前的记录
		if now.Day() != maxTS.Day() {
			yesterday, err := e.store.RecordsForDay(ctx, e.roomID, now.AddDate(0, 0, -1))
			if err != nil {
				return err
			}
			for _, rec := range yesterday {
				if rec.Timestamp.After(maxTS) {
					e.window = append(e.window, rec)
				}
			}
		}
	}

	sort.Slice(e.window, func(i, j int) bool {
		return e.window[i].Timestamp.Before(e.window[j].Timestamp)
	})

	cutoff := e.window[len(e.window)-1].Timestamp.Add(-e.windowSpan)
	start := 0
	for start < len(e.window) && !e.window[start].Timestamp.After(cutoff) {
		start++
	}
	e.window = e.window[start:]

	e.userConfig.RefreshSeasonalDefault()
	return nil
}

// latestDecidedBefore returns the most recent fully decided record
// strictly preceding ts, or nil.
func (e *Engine) latestDecidedBefore(ts time.Time) *models.FusedRecord {
	for i := len(e.window) - 1; i >= 0; i-- {
		rec := &e.window[i]
		if rec.Timestamp.Before(ts) && rec.Decided() {
			return rec
		}
	}
	return nil
}

// applyActions triggers the actuator stubs for every axis set to 1.
// Actuator failures are logged and swallowed: the cycle records its
// decision regardless of downstream device availability.
func (e *Engine) applyActions(ctx context.Context, decision *models.AppliedDecision) {
	cmd := actuator.Command{
		RoomID:          e.roomID,
		DecisionID:      decision.DecisionID,
		TargetTempC:     e.userConfig.OptimalRoomTempC(),
		RoomTempC:       decision.RoomTempC,
		RoomHumidityPct: decision.RoomHumidityPct,
		Timestamp:       decision.Timestamp,
	}

	if decision.Actions.Heat == 1 {
		if err := e.acts.TriggerHeater(ctx, cmd); err != nil {
			e.logger.Warn("Heater call failed", zap.String("room_id", e.roomID), zap.Error(err))
		}
	} else if decision.Actions.Cool == 1 {
		if err := e.acts.TriggerCooler(ctx, cmd); err != nil {
			e.logger.Warn("Cooler call failed", zap.String("room_id", e.roomID), zap.Error(err))
		}
	}

	if decision.Actions.Humidify == 1 {
		if err := e.acts.TriggerHumidifier(ctx, cmd); err != nil {
			e.logger.Warn("Humidifier call failed", zap.String("room_id", e.roomID), zap.Error(err))
		}
	} else if decision.Actions.Dry == 1 {
		if err := e.acts.TriggerWindowOpener(ctx, cmd); err != nil {
			e.logger.Warn("Window opener call failed", zap.String("room_id", e.roomID), zap.Error(err))
		}
	}
}
