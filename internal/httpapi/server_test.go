package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/signalcore/internal/learning"
	"github.com/tradeforge/signalcore/internal/pipeline"
)

type fakeArchive struct {
	outcomes    []learning.Outcome
	adaptations []learning.Adaptation
}

func (a *fakeArchive) InsertOutcome(_ context.Context, o learning.Outcome) error {
	a.outcomes = append(a.outcomes, o)
	return nil
}

func (a *fakeArchive) InsertAdaptation(_ context.Context, ad learning.Adaptation) error {
	a.adaptations = append(a.adaptations, ad)
	return nil
}

func newTestServer(archive OutcomeArchive) *Server {
	return New(Config{
		Addr:          ":0",
		RatePerSecond: 1000,
		RateBurst:     1000,
		Archive:       archive,
	}, pipeline.New(pipeline.DefaultOptions()), prometheus.NewRegistry())
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, req)
	return w
}

func TestDiagnosticsRoutes(t *testing.T) {
	s := newTestServer(nil)

	for _, path := range []string{"/health", "/regime", "/thresholds", "/rejections", "/metrics"} {
		w := do(s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestHealthPayload(t *testing.T) {
	s := newTestServer(nil)

	w := do(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var h learning.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, learning.HealthUnknown, h.Tier)
}

func TestPostOutcome(t *testing.T) {
	archive := &fakeArchive{}
	s := newTestServer(archive)

	body := `{"signal_id":"sig-1","symbol":"BTC-USD","actual_return":0.02,"correct_direction":true}`
	w := do(s, http.MethodPost, "/outcomes", body)
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, archive.outcomes, 1)
	assert.Equal(t, "sig-1", archive.outcomes[0].SignalID)
}

func TestPostOutcome_BadPayloads(t *testing.T) {
	s := newTestServer(nil)

	w := do(s, http.MethodPost, "/outcomes", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(s, http.MethodPost, "/outcomes", `{"symbol":"BTC-USD"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing signal_id rejected")
}

func TestRateLimit(t *testing.T) {
	s := New(Config{Addr: ":0", RatePerSecond: 1, RateBurst: 2},
		pipeline.New(pipeline.DefaultOptions()), prometheus.NewRegistry())

	codes := make(map[int]int)
	for i := 0; i < 5; i++ {
		codes[do(s, http.MethodGet, "/health", "").Code]++
	}
	assert.Positive(t, codes[http.StatusTooManyRequests])
}
