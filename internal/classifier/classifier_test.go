package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FelixMarschall/SmartHomeBioSignal/internal/models"
)

func testRecord() models.FusedRecord {
	return models.FusedRecord{
		Timestamp:       time.Now(),
		WristTempC:      34.0,
		RoomTempC:       23.5,
		RoomHumidityPct: 48.0,
		HeartRateBPM:    68.0,
		IBIMs:           882.4,
		SDNNMs:          38.5,
	}
}

func TestHTTPClassifier_Predict_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/predict", r.URL.Path)

		var req map[string]float64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.InDelta(t, 10.5, req["wrist_room_temp_delta_c"], 0.001)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"label": 1})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, 2*time.Second, 0, zap.NewNop())

	label, err := c.Predict(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, 1, label)
}

func TestHTTPClassifier_Predict_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, 2*time.Second, 0, zap.NewNop())

	_, err := c.Predict(context.Background(), testRecord())
	require.Error(t, err)
}

func TestHTTPClassifier_Predict_LabelOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"label": 3})
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, 2*time.Second, 0, zap.NewNop())

	_, err := c.Predict(context.Background(), testRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside")
}
