package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Command carries one symbolic action intent to a smart-home device.
// TargetTempC is the occupant's current optimal room temperature; the
// device-side integration decides how to reach it.
type Command struct {
	RoomID          string    `json:"room_id"`
	DecisionID      string    `json:"decision_id"`
	TargetTempC     float64   `json:"target_temp_c"`
	RoomTempC       float64   `json:"room_temp_c"`
	RoomHumidityPct float64   `json:"room_humidity_pct"`
	Timestamp       time.Time `json:"timestamp"`
}

// Actuators is the downstream smart-home contract: four independent unary
// calls, fire-and-forget. Failures are logged by the engine and never abort
// a decision cycle.
type Actuators interface {
	TriggerHeater(ctx context.Context, cmd Command) error
	TriggerCooler(ctx context.Context, cmd Command) error
	TriggerHumidifier(ctx context.Context, cmd Command) error
	TriggerWindowOpener(ctx context.Context, cmd Command) error
}

// Publisher 抽象的 MQTT 发布接口（用于在单元测试中替换真实客户端）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTActuators publishes action intents as JSON commands to
// thermal/{room}/{device}/set topics.
type MQTTActuators struct {
	publisher Publisher
	qos       byte
	logger    *zap.Logger
}

// NewMQTTActuators 创建 MQTT 执行器客户端
func NewMQTTActuators(publisher Publisher, qos byte, logger *zap.Logger) *MQTTActuators {
	return &MQTTActuators{
		publisher: publisher,
		qos:       qos,
		logger:    logger,
	}
}

var _ Actuators = (*MQTTActuators)(nil)

func (a *MQTTActuators) TriggerHeater(ctx context.Context, cmd Command) error {
	return a.publish("heater", cmd)
}

func (a *MQTTActuators) TriggerCooler(ctx context.Context, cmd Command) error {
	return a.publish("cooler", cmd)
}

func (a *MQTTActuators) TriggerHumidifier(ctx context.Context, cmd Command) error {
	return a.publish("humidifier", cmd)
}

func (a *MQTTActuators) TriggerWindowOpener(ctx context.Context, cmd Command) error {
	return a.publish("window-opener", cmd)
}

func (a *MQTTActuators) publish(device string, cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal actuator command: %w", err)
	}

	topic := fmt.Sprintf("thermal/%s/%s/set", cmd.RoomID, device)
	if err := a.publisher.Publish(topic, a.qos, false, payload); err != nil {
		return fmt.Errorf("failed to publish actuator command: %w", err)
	}

	a.logger.Debug("Published actuator command",
		zap.String("topic", topic),
		zap.String("decision_id", cmd.DecisionID),
	)
	return nil
}
