package models

import "time"

// Occupant feedback levels (ASHRAE-style comfort vote, -2 = cold .. 2 = hot).
const (
	FeedbackCold         = -2
	FeedbackSlightlyCool = -1
	FeedbackNeutral      = 0
	FeedbackSlightlyWarm = 1
	FeedbackHot          = 2
)

// Classifier output labels (collapsed comfort zone, -1 = too cold .. 1 = too warm).
const (
	LabelTooCold = -1
	LabelNeutral = 0
	LabelTooWarm = 1
)

// FusedRecord 一条融合后的传感器记录（每个 5 秒重采样窗口一条）
//
// 由上游预处理服务融合手环数据（腕温、心率、IBI、SDNN）和智能家居
// 环境传感器数据（室温、湿度）产生。决策列（heat/cool/humidify/dry）
// 在决策周期完成前为空；user_feedback 只会出现在最新一条记录上。
type FusedRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	WristTempC      float64   `json:"wrist_temp_c"`
	RoomTempC       float64   `json:"room_temp_c"`
	RoomHumidityPct float64   `json:"room_humidity_pct"`
	HeartRateBPM    float64   `json:"heart_rate_bpm"`
	IBIMs           float64   `json:"ibi_ms"`
	SDNNMs          float64   `json:"sdnn_ms"`

	// ClassifierPrediction is the comfort-zone label in {-1,0,1}; nil until
	// the classifier adapter has resolved it.
	ClassifierPrediction *int `json:"classifier_prediction,omitempty"`

	// Decision columns, nil until a decision cycle has run for this record.
	Heat     *int `json:"heat,omitempty"`
	Cool     *int `json:"cool,omitempty"`
	Humidify *int `json:"humidify,omitempty"`
	Dry      *int `json:"dry,omitempty"`

	// UserFeedback in {-2..2}; only ever set on the newest record.
	UserFeedback *int `json:"user_feedback,omitempty"`
}

// Decided reports whether all four action columns have been written.
func (r *FusedRecord) Decided() bool {
	return r.Heat != nil && r.Cool != nil && r.Humidify != nil && r.Dry != nil
}

// Intent returns the decision stored on this record, if complete.
func (r *FusedRecord) Intent() (ActionIntent, bool) {
	if !r.Decided() {
		return ActionIntent{}, false
	}
	return ActionIntent{Heat: *r.Heat, Cool: *r.Cool, Humidify: *r.Humidify, Dry: *r.Dry}, true
}

// SetIntent writes a decision onto the record's action columns.
func (r *FusedRecord) SetIntent(in ActionIntent) {
	heat, cool, humidify, dry := in.Heat, in.Cool, in.Humidify, in.Dry
	r.Heat = &heat
	r.Cool = &cool
	r.Humidify = &humidify
	r.Dry = &dry
}

// ActionIntent 一次决策周期的输出（0=关闭，1=开启）
//
// 约束：heat/cool 最多一个为 1，humidify/dry 最多一个为 1，两轴相互独立。
type ActionIntent struct {
	Heat     int `json:"heat"`
	Cool     int `json:"cool"`
	Humidify int `json:"humidify"`
	Dry      int `json:"dry"`
}

// AppliedDecision snapshots one applied (or rolled back) decision together
// with the room conditions it was taken under. Retained by the engine as
// lastAppliedDecision / rollbackDecision and cached for the dashboard.
type AppliedDecision struct {
	DecisionID      string       `json:"decision_id"`
	RoomID          string       `json:"room_id"`
	Timestamp       time.Time    `json:"timestamp"`
	RoomTempC       float64      `json:"room_temp_c"`
	RoomHumidityPct float64      `json:"room_humidity_pct"`
	Actions         ActionIntent `json:"actions"`
}
