package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FelixMarschall/SmartHomeBioSignal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

type fakeClassifier struct {
	label int
	err   error
	calls int
}

func (f *fakeClassifier) Predict(ctx context.Context, rec models.FusedRecord) (int, error) {
	f.calls++
	return f.label, f.err
}

type fakeAppender struct {
	roomID  string
	records []models.FusedRecord
	err     error
}

func (f *fakeAppender) AppendRecords(ctx context.Context, roomID string, records []models.FusedRecord) error {
	f.roomID = roomID
	f.records = records
	return f.err
}

type fakeRunner struct {
	roomID  string
	actions models.ActionIntent
	err     error
	calls   int
}

func (f *fakeRunner) RunDecision(ctx context.Context, roomID string) (models.ActionIntent, error) {
	f.calls++
	f.roomID = roomID
	return f.actions, f.err
}

func newTestConsumer(cls *fakeClassifier, store *fakeAppender, runner *fakeRunner) *StreamConsumer {
	cfg := Config{
		Stream:        "thermal:fused-records",
		ConsumerGroup: "thermal-engine-group",
		ConsumerName:  "thermal-engine-1",
		BatchSize:     10,
	}
	return NewStreamConsumer(nil, cfg, cls, store, runner, zap.NewNop())
}

func sampleEnvelope() *RecordEnvelope {
	return &RecordEnvelope{
		RoomID: "room-1",
		Records: []models.FusedRecord{
			{
				Timestamp:       time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC),
				WristTempC:      34.0,
				RoomTempC:       22.0,
				RoomHumidityPct: 50.0,
			},
			{
				Timestamp:       time.Date(2026, 2, 3, 12, 0, 5, 0, time.UTC),
				WristTempC:      34.1,
				RoomTempC:       22.1,
				RoomHumidityPct: 50.5,
			},
		},
	}
}

func TestHandleEnvelope_ResolvesPredictionsAndRunsDecision(t *testing.T) {
	cls := &fakeClassifier{label: models.LabelTooWarm}
	store := &fakeAppender{}
	runner := &fakeRunner{actions: models.ActionIntent{Cool: 1}}
	c := newTestConsumer(cls, store, runner)

	err := c.handleEnvelope(context.Background(), sampleEnvelope())
	require.NoError(t, err)

	assert.Equal(t, 2, cls.calls)
	assert.Equal(t, "room-1", store.roomID)
	require.Len(t, store.records, 2)
	for _, rec := range store.records {
		require.NotNil(t, rec.ClassifierPrediction)
		assert.Equal(t, models.LabelTooWarm, *rec.ClassifierPrediction)
	}
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, "room-1", runner.roomID)
}

func TestHandleEnvelope_KeepsResolvedPredictions(t *testing.T) {
	cls := &fakeClassifier{label: models.LabelTooWarm}
	store := &fakeAppender{}
	runner := &fakeRunner{}
	c := newTestConsumer(cls, store, runner)

	envelope := sampleEnvelope()
	resolved := models.LabelTooCold
	envelope.Records[0].ClassifierPrediction = &resolved

	require.NoError(t, c.handleEnvelope(context.Background(), envelope))

	// Only the unresolved record hits the classifier.
	assert.Equal(t, 1, cls.calls)
	assert.Equal(t, models.LabelTooCold, *store.records[0].ClassifierPrediction)
}

func TestHandleEnvelope_FeedbackAttachedToNewestRecord(t *testing.T) {
	store := &fakeAppender{}
	c := newTestConsumer(&fakeClassifier{}, store, &fakeRunner{})

	envelope := sampleEnvelope()
	fb := models.FeedbackHot
	envelope.UserFeedback = &fb

	require.NoError(t, c.handleEnvelope(context.Background(), envelope))

	require.Len(t, store.records, 2)
	assert.Nil(t, store.records[0].UserFeedback)
	require.NotNil(t, store.records[1].UserFeedback)
	assert.Equal(t, models.FeedbackHot, *store.records[1].UserFeedback)
}

func TestHandleEnvelope_ClassifierFailureLeavesPredictionUnresolved(t *testing.T) {
	cls := &fakeClassifier{err: errors.New("model unavailable")}
	store := &fakeAppender{}
	runner := &fakeRunner{}
	c := newTestConsumer(cls, store, runner)

	require.NoError(t, c.handleEnvelope(context.Background(), sampleEnvelope()))

	// The batch is still stored and the decision cycle still runs.
	require.Len(t, store.records, 2)
	assert.Nil(t, store.records[0].ClassifierPrediction)
	assert.Equal(t, 1, runner.calls)
}

func TestHandleEnvelope_MissingRoomID(t *testing.T) {
	c := newTestConsumer(&fakeClassifier{}, &fakeAppender{}, &fakeRunner{})

	envelope := sampleEnvelope()
	envelope.RoomID = ""

	err := c.handleEnvelope(context.Background(), envelope)
	assert.Error(t, err)
}

func TestHandleEnvelope_EmptyBatchSkipped(t *testing.T) {
	store := &fakeAppender{}
	runner := &fakeRunner{}
	c := newTestConsumer(&fakeClassifier{}, store, runner)

	err := c.handleEnvelope(context.Background(), &RecordEnvelope{RoomID: "room-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, runner.calls)
}

func TestHandleEnvelope_AppendFailure(t *testing.T) {
	store := &fakeAppender{err: errors.New("insert failed")}
	runner := &fakeRunner{}
	c := newTestConsumer(&fakeClassifier{}, store, runner)

	err := c.handleEnvelope(context.Background(), sampleEnvelope())
	assert.Error(t, err)
	assert.Equal(t, 0, runner.calls)
}
