package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/FelixMarschall/SmartHomeBioSignal/internal/cache"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/engine"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/models"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// ThermalController 热舒适服务接口（由 service 层实现）
type ThermalController interface {
	ApplyUserPreference(ctx context.Context, roomID string, tempC float64) error
	RunDecision(ctx context.Context, roomID string) (models.ActionIntent, error)
	IngestRecords(ctx context.Context, roomID string, records []models.FusedRecord, feedback *int) (models.ActionIntent, error)
	RollbackDecision(ctx context.Context, roomID string) (models.ActionIntent, error)
	LatestDecision(ctx context.Context, roomID string) (*models.AppliedDecision, error)
}

// ThermalHandler 热舒适控制 Handler
type ThermalHandler struct {
	controller ThermalController
	logger     *zap.Logger
}

func NewThermalHandler(controller ThermalController, logger *zap.Logger) *ThermalHandler {
	return &ThermalHandler{
		controller: controller,
		logger:     logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
//
// 路由：
//
//	POST /thermal/api/v1/rooms/{roomID}/config/room-temp 设置目标室温
//	POST /thermal/api/v1/rooms/{roomID}/control/decision 摄入记录并/或触发决策
//	POST /thermal/api/v1/rooms/{roomID}/control/rollback 回滚上一次决策
//	GET  /thermal/api/v1/rooms/{roomID}/control/latest   查询最新决策
func (h *ThermalHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/thermal/api/v1/rooms/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	roomID, op := parts[0], parts[1]

	switch {
	case op == "config/room-temp" && r.Method == http.MethodPost:
		h.SetRoomTemp(w, r, roomID)
	case op == "control/decision" && r.Method == http.MethodPost:
		h.Decide(w, r, roomID)
	case op == "control/rollback" && r.Method == http.MethodPost:
		h.Rollback(w, r, roomID)
	case op == "control/latest" && r.Method == http.MethodGet:
		h.LatestDecision(w, r, roomID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type setRoomTempRequest struct {
	// json.Number so that non-numeric payloads are rejected instead of
	// silently coerced.
	RoomTempC json.Number `json:"room_temp_c"`
}

// SetRoomTemp 设置用户目标室温
func (h *ThermalHandler) SetRoomTemp(w http.ResponseWriter, r *http.Request, roomID string) {
	ctx := r.Context()

	var req setRoomTempRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	tempC, err := req.RoomTempC.Float64()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(engine.ErrInvalidPreference.Error()))
		return
	}

	if err := h.controller.ApplyUserPreference(ctx, roomID, tempC); err != nil {
		h.writeError(w, roomID, "ApplyUserPreference", err)
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]float64{"room_temp_c": tempC}))
}

type decisionRequest struct {
	Records      []models.FusedRecord `json:"records,omitempty"`
	UserFeedback *int                 `json:"user_feedback,omitempty"`
}

// Decide 摄入一批记录（可选）并触发一次决策周期
func (h *ThermalHandler) Decide(w http.ResponseWriter, r *http.Request, roomID string) {
	ctx := r.Context()

	var req decisionRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	var (
		actions models.ActionIntent
		err     error
	)
	if len(req.Records) > 0 || req.UserFeedback != nil {
		actions, err = h.controller.IngestRecords(ctx, roomID, req.Records, req.UserFeedback)
	} else {
		actions, err = h.controller.RunDecision(ctx, roomID)
	}
	if err != nil {
		h.writeError(w, roomID, "Decide", err)
		return
	}

	writeJSON(w, http.StatusOK, Ok(actions))
}

// Rollback 回滚上一次决策
func (h *ThermalHandler) Rollback(w http.ResponseWriter, r *http.Request, roomID string) {
	actions, err := h.controller.RollbackDecision(r.Context(), roomID)
	if err != nil {
		h.writeError(w, roomID, "Rollback", err)
		return
	}

	writeJSON(w, http.StatusOK, Ok(actions))
}

// LatestDecision 查询房间最新决策
func (h *ThermalHandler) LatestDecision(w http.ResponseWriter, r *http.Request, roomID string) {
	decision, err := h.controller.LatestDecision(r.Context(), roomID)
	if err != nil {
		h.writeError(w, roomID, "LatestDecision", err)
		return
	}

	writeJSON(w, http.StatusOK, Ok(decision))
}

func (h *ThermalHandler) writeError(w http.ResponseWriter, roomID, op string, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidPreference):
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
	case errors.Is(err, engine.ErrEmptyHistory),
		errors.Is(err, engine.ErrNoPriorDecision),
		errors.Is(err, cache.ErrCacheMiss):
		writeJSON(w, http.StatusNotFound, Fail(err.Error()))
	default:
		h.logger.Error(op+" failed", zap.String("room_id", roomID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
	}
}
