package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tariff-cli/internal/model"
	"github.com/sells-group/tariff-cli/internal/resilience"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, req model.Request) *model.RunResult {
	args := m.Called(ctx, req)
	return args.Get(0).(*model.RunResult)
}

type fakeAudit struct {
	events []model.AuditEvent
	err    error
	runID  string
}

func (f *fakeAudit) ListAudit(_ context.Context, runID string) ([]model.AuditEvent, error) {
	f.runID = runID
	return f.events, f.err
}

func newTestServer(r runner, a auditReader) http.Handler {
	s := &server{runs: r, audit: a, breakers: resilience.NewBreakers(resilience.DefaultBreakerConfig())}
	return s.routes([]string{"https://portal.example.com"})
}

func TestServe_Health(t *testing.T) {
	h := newTestServer(&mockRunner{}, &fakeAudit{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "breakers")
}

func TestServe_Classify(t *testing.T) {
	r := &mockRunner{}
	r.On("Run", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		return req.Subject == "steel box" && len(req.Items) == 1
	})).Return(&model.RunResult{
		RunID:  "run-1",
		Status: model.RunStatusComplete,
		Items:  []model.ItemResult{{Code: "7326900000", DisplayCode: "7326.90.0000", Confidence: 0.75}},
	})

	h := newTestServer(r, &fakeAudit{})
	body := `{"subject":"steel box","items":[{"product":{"description":{"en":"steel storage box"}}}]}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/classify", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var res model.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "run-1", res.RunID)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "7326900000", res.Items[0].Code)
	r.AssertExpectations(t)
}

func TestServe_ClassifyRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"items":`, "invalid request body"},
		{"no items", `{"subject":"x","items":[]}`, "items are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &mockRunner{}
			h := newTestServer(r, &fakeAudit{})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/classify", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			r.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
		})
	}
}

func TestServe_ClassifyBodyTooLarge(t *testing.T) {
	h := newTestServer(&mockRunner{}, &fakeAudit{})
	big := `{"subject":"` + strings.Repeat("a", maxRequestBody) + `"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/classify", strings.NewReader(big)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_RunAudit(t *testing.T) {
	a := &fakeAudit{events: []model.AuditEvent{
		{RunID: "run-7", Kind: model.AuditLoop, Item: -1},
		{RunID: "run-7", Kind: model.AuditRun, Item: -1},
	}}
	h := newTestServer(&mockRunner{}, a)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/run-7/audit", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-7", a.runID)

	var body struct {
		RunID  string             `json:"run_id"`
		Events []model.AuditEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "run-7", body.RunID)
	assert.Len(t, body.Events, 2)
}

func TestServe_RunAuditErrors(t *testing.T) {
	t.Run("unknown run", func(t *testing.T) {
		h := newTestServer(&mockRunner{}, &fakeAudit{})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/missing/audit", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		h := newTestServer(&mockRunner{}, &fakeAudit{err: errors.New("db down")})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/run-1/audit", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "db down")
	})
}

func TestServe_CORS(t *testing.T) {
	h := newTestServer(&mockRunner{}, &fakeAudit{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/classify", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://portal.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServe_MethodNotAllowed(t *testing.T) {
	h := newTestServer(&mockRunner{}, &fakeAudit{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/classify", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
