package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/FelixMarschall/SmartHomeBioSignal/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Classifier maps a fused feature record to a discrete comfort-zone label
// in {-1,0,1}. The engine accepts any implementation of this single-method
// contract, which keeps the model itself opaque and test doubles trivial.
type Classifier interface {
	Predict(ctx context.Context, record models.FusedRecord) (int, error)
}

// predictRequest 推理服务的特征向量（字段顺序与训练时一致）
type predictRequest struct {
	WristTempC          float64 `json:"wrist_temp_c"`
	RoomTempC           float64 `json:"room_temp_c"`
	WristRoomTempDeltaC float64 `json:"wrist_room_temp_delta_c"`
	RoomHumidityPct     float64 `json:"room_humidity_pct"`
	HeartRateBPM        float64 `json:"heart_rate_bpm"`
	IBIMs               float64 `json:"ibi_ms"`
	SDNNMs              float64 `json:"sdnn_ms"`
}

type predictResponse struct {
	Label int `json:"label"`
}

// HTTPClassifier 调用外部推理服务的舒适度分类器
type HTTPClassifier struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPClassifier 创建 HTTP 分类器客户端
func NewHTTPClassifier(baseURL string, timeout time.Duration, retryCount int, logger *zap.Logger) *HTTPClassifier {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPClassifier{
		httpClient: client,
		logger:     logger,
	}
}

var _ Classifier = (*HTTPClassifier)(nil)

// Predict posts the engineered feature vector to the inference endpoint
// and returns the comfort-zone label.
func (c *HTTPClassifier) Predict(ctx context.Context, record models.FusedRecord) (int, error) {
	req := predictRequest{
		WristTempC:          record.WristTempC,
		RoomTempC:           record.RoomTempC,
		WristRoomTempDeltaC: record.WristTempC - record.RoomTempC,
		RoomHumidityPct:     record.RoomHumidityPct,
		HeartRateBPM:        record.HeartRateBPM,
		IBIMs:               record.IBIMs,
		SDNNMs:              record.SDNNMs,
	}

	var result predictResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/predict")
	if err != nil {
		return 0, fmt.Errorf("failed to call classifier: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode(), resp.String())
	}

	if result.Label < models.LabelTooCold || result.Label > models.LabelTooWarm {
		return 0, fmt.Errorf("classifier returned label outside {-1,0,1}: %d", result.Label)
	}

	c.logger.Debug("Classifier prediction",
		zap.Int("label", result.Label),
		zap.Float64("room_temp_c", record.RoomTempC),
		zap.Float64("wrist_temp_c", record.WristTempC),
	)

	return result.Label, nil
}
