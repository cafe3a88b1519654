package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lucifer7355/pii-anonymizer/anonymize"
	"github.com/Lucifer7355/pii-anonymizer/config"
	"github.com/Lucifer7355/pii-anonymizer/masking"
)

type stubLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.err
}

type stubKeyStore struct {
	valid   map[string]bool
	created string
	err     error
}

func (s *stubKeyStore) Create(context.Context) (string, error) {
	return s.created, s.err
}

func (s *stubKeyStore) Valid(_ context.Context, key string) (bool, error) {
	return s.valid[key], s.err
}

type failingEngine struct {
	*masking.Engine
}

func (failingEngine) Anonymize(context.Context, anonymize.AnonymizationRequest) (string, error) {
	return "", errors.New("engine exploded")
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Port:         ":8080",
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		IdleTimeout:  time.Second,
		MaxBodyBytes: 1 << 20,
	}
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	opts = append([]Option{WithLogger(logger)}, opts...)
	return New(testServerConfig(), masking.NewEngine(), opts...), hook
}

func textRequest(text string, opts anonymize.OptionSet) anonymize.AnonymizationRequest {
	return anonymize.AnonymizationRequest{RawData: text, NamesList: []string{}, Options: opts}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAnonymizeHandler_Success(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/anonymize", anonymize.AnonymizationRequest{
		RawData:   "Alice mailed alice@example.com",
		NamesList: []string{"Alice"},
		Options:   anonymize.OptionSet{Name: true, Email: true},
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp anonymize.AnonymizationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "[Name_Anonymized] mailed [Email_Anonymized]", resp.Anonymized)
}

func TestAnonymizeHandler_AllOptionsFalseReturnsRaw(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/anonymize",
		anonymize.BuildRequest(anonymize.Inputs{Text: "Bob at 555-123-4567", Names: "Bob"}), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"anonymized":"Bob at 555-123-4567"}`, rec.Body.String())
}

func TestAnonymizeHandler_InvalidJSON(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/anonymize", strings.NewReader("{bad json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid JSON"}`, rec.Body.String())
}

func TestAnonymizeHandler_MissingFields(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want string
	}{
		{name: "empty object", body: `{}`, want: `{"error":"raw_data is required"}`},
		{name: "no names_list", body: `{"raw_data":"x","options":{}}`, want: `{"error":"names_list is required"}`},
		{name: "null names_list", body: `{"raw_data":"x","names_list":null,"options":{}}`, want: `{"error":"names_list is required"}`},
		{name: "no options", body: `{"raw_data":"x","names_list":[]}`, want: `{"error":"options is required"}`},
	}

	s, _ := newTestServer(t)
	h := s.Handler()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, path := range []string{"/anonymize", "/detect"} {
				req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(tc.body))
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)

				assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, path)
				assert.JSONEq(t, tc.want, rec.Body.String(), path)
			}
		})
	}
}

func TestAnonymizeHandler_EmptyFieldsAccepted(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/anonymize", strings.NewReader(`{"raw_data":"","names_list":[],"options":{}}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"anonymized":""}`, rec.Body.String())
}

func TestAnonymizeHandler_BodyTooLarge(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.MaxBodyBytes = 16
	rec := doJSON(t, s.Handler(), http.MethodPost, "/anonymize", anonymize.AnonymizationRequest{
		RawData: strings.Repeat("x", 64),
	}, nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAnonymizeHandler_EngineError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s := New(testServerConfig(), failingEngine{masking.NewEngine()}, WithLogger(logger))

	rec := doJSON(t, s.Handler(), http.MethodPost, "/anonymize", textRequest("x", anonymize.OptionSet{}), nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Anonymization failed"}`, rec.Body.String())

	var logged bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel && entry.Message == "Anonymization failed" {
			logged = true
		}
	}
	assert.True(t, logged)
}

func TestAnonymizeHandler_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/anonymize", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPreflight(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/anonymize", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
}

func TestBatchHandler(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/anonymize/batch", []anonymize.AnonymizationRequest{
		textRequest("bob@example.com", anonymize.OptionSet{Email: true}),
		textRequest("untouched", anonymize.OptionSet{}),
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"anonymized":"[Email_Anonymized]"},{"anonymized":"untouched"}]`, rec.Body.String())
}

func TestBatchHandler_TooLarge(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/anonymize/batch", make(BatchRequest, maxBatchSize+1), nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Batch too large"}`, rec.Body.String())
}

func TestBatchHandler_MissingFieldInItem(t *testing.T) {
	s, _ := newTestServer(t)
	body := `[{"raw_data":"a","names_list":[],"options":{}},{"names_list":[],"options":{}}]`
	req := httptest.NewRequest(http.MethodPost, "/anonymize/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"error":"item 1: raw_data is required"}`, rec.Body.String())
}

func TestDetectHandler(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/detect", textRequest("Reach bob@example.com", anonymize.OptionSet{Email: true}), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DetectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entities, 1)
	assert.Equal(t, "bob@example.com", resp.Entities[0].Text)
	assert.Equal(t, anonymize.CategoryEmail, resp.Entities[0].Category)
	assert.Equal(t, 6, resp.Entities[0].Start)
}

func TestDetectHandler_NoEntities(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/detect", textRequest("nothing", anonymize.OptionSet{}), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entities":[]}`, rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	limiter := &stubLimiter{allowed: false}
	s, _ := newTestServer(t, WithRateLimiter(limiter))

	rec := doJSON(t, s.Handler(), http.MethodPost, "/anonymize", anonymize.AnonymizationRequest{}, nil)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too Many Requests"}`, rec.Body.String())
	assert.Equal(t, []string{"192.0.2.1"}, limiter.keys)
}

func TestRateLimit_LimiterErrorRejects(t *testing.T) {
	limiter := &stubLimiter{allowed: true, err: errors.New("redis down")}
	s, hook := newTestServer(t, WithRateLimiter(limiter))

	rec := doJSON(t, s.Handler(), http.MethodPost, "/anonymize", anonymize.AnonymizationRequest{}, nil)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRateLimit_HealthNotLimited(t *testing.T) {
	limiter := &stubLimiter{allowed: false}
	s, _ := newTestServer(t, WithRateLimiter(limiter))

	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, limiter.keys)
}

func TestRedisRateLimitThroughHandler(t *testing.T) {
	client, mock := redismock.NewClientMock()
	now := time.Unix(1700000000, 0)
	limiter := NewRedisRateLimiter(client, 3, 1)
	limiter.now = func() time.Time { return now }
	s, _ := newTestServer(t, WithRateLimiter(limiter))

	mock.ExpectEval(luaScript, []string{"ratelimit:192.0.2.1"}, 3, 1, now.Unix()).SetVal(int64(1))
	mock.ExpectEval(luaScript, []string{"ratelimit:192.0.2.1"}, 3, 1, now.Unix()).SetVal(int64(0))

	h := s.Handler()
	first := doJSON(t, h, http.MethodPost, "/anonymize", textRequest("ok", anonymize.OptionSet{}), nil)
	second := doJSON(t, h, http.MethodPost, "/anonymize", textRequest("ok", anonymize.OptionSet{}), nil)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequireAPIKey(t *testing.T) {
	keys := &stubKeyStore{valid: map[string]bool{"good": true}}
	s, _ := newTestServer(t, WithKeyStore(keys))
	s.cfg.RequireAPIKey = true
	h := s.Handler()

	testCases := []struct {
		name   string
		key    string
		status int
	}{
		{name: "missing key", key: "", status: http.StatusUnauthorized},
		{name: "unknown key", key: "bad", status: http.StatusUnauthorized},
		{name: "valid key", key: "good", status: http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.key != "" {
				headers["X-API-Key"] = tc.key
			}
			rec := doJSON(t, h, http.MethodPost, "/anonymize", textRequest("x", anonymize.OptionSet{}), headers)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"Invalid API key"}`, rec.Body.String())
			}
		})
	}
}

func TestGenerateAPIKeyHandler(t *testing.T) {
	s, _ := newTestServer(t, WithKeyStore(&stubKeyStore{created: "fresh"}))
	rec := doJSON(t, s.Handler(), http.MethodPost, "/apikeys", nil, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"key":"fresh"}`, rec.Body.String())
}

func TestGenerateAPIKeyHandler_NoStore(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/apikeys", nil, nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	client, mock := redismock.NewClientMock()
	s, _ := newTestServer(t, WithRedis(client))
	h := s.Handler()

	mock.ExpectPing().SetVal("PONG")
	rec := doJSON(t, h, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","redis":"ok"}`, rec.Body.String())

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	rec = doJSON(t, h, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","redis":"unreachable"}`, rec.Body.String())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthHandler_WithoutRedis(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","redis":"disabled"}`, rec.Body.String())
}

func TestRequestIDPropagated(t *testing.T) {
	s, hook := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil, map[string]string{"X-Request-ID": "req-42"})

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Request handled", entry.Message)
	assert.Equal(t, "req-42", entry.Data["request_id"])
	assert.Equal(t, http.StatusOK, entry.Data["status"])
}

func TestMetrics(t *testing.T) {
	metrics := NewMetrics()
	s, _ := newTestServer(t, WithMetrics(metrics))
	h := s.Handler()

	doJSON(t, h, http.MethodPost, "/anonymize", textRequest("x", anonymize.OptionSet{}), nil)
	doJSON(t, h, http.MethodPost, "/anonymize", textRequest("x", anonymize.OptionSet{}), nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Requests.WithLabelValues("/anonymize", "200")))

	rec := doJSON(t, h, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "anonymizer_requests_total")
	assert.Contains(t, rec.Body.String(), "anonymizer_request_duration_seconds")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.Observe("/anonymize", http.StatusOK, time.Millisecond) })
}

func TestIndexHandler(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	for _, id := range []string{"inputText", "namesList", "checkName", "checkDate", "checkEmail", "checkPhone", "checkID", "checkAddress", "outputText"} {
		assert.Contains(t, body, `id="`+id+`"`)
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	s, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestClientAgainstServer(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	client := anonymize.NewClient(ts.URL)
	out, err := client.Anonymize(context.Background(), anonymize.BuildRequest(anonymize.Inputs{
		Text:    "Call Ann at 555-123-4567",
		Names:   "Ann",
		Options: anonymize.OptionSet{Name: true, Phone: true},
	}))
	require.NoError(t, err)
	assert.Equal(t, "Call [Name_Anonymized] at [Phone_Anonymized]", out)
}
