package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taoyao-code/scent-server/internal/api/middleware"
	"github.com/taoyao-code/scent-server/internal/catalog"
	"github.com/taoyao-code/scent-server/internal/session"
	"go.uber.org/zap"
)

type fakeSession struct {
	mu       sync.Mutex
	plays    []session.Step
	seqs     [][]session.Step
	seqCtxOK bool
	ctxErrs  map[string]error // 操作开始时 ctx.Err()
	out      session.Outcome
}

func (f *fakeSession) recordCtx(op string, ctx context.Context) {
	if f.ctxErrs == nil {
		f.ctxErrs = make(map[string]error)
	}
	f.ctxErrs[op] = ctx.Err()
}

func (f *fakeSession) PlayOne(ctx context.Context, channel, duration int) session.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordCtx("play", ctx)
	f.plays = append(f.plays, session.Step{Channel: channel, DurationSeconds: duration})
	return f.out
}

func (f *fakeSession) PlaySequence(ctx context.Context, steps []session.Step) session.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordCtx("sequence", ctx)
	f.seqs = append(f.seqs, steps)
	f.seqCtxOK = ctx.Done() == nil
	return f.out
}

func (f *fakeSession) TestConnection(ctx context.Context) session.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordCtx("test", ctx)
	return f.out
}

func newTestRouter(t *testing.T, fs *fakeSession, opts RouteOptions) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cat, err := catalog.Parse([]byte("scents:\n  Lavender:\n    location: 3\n  Campfire:\n    location: 12\n"))
	require.NoError(t, err)

	r := gin.New()
	RegisterScentRoutes(r, NewScentHandler(fs, cat, zap.NewNop()), opts, zap.NewNop())
	return r
}

func doJSON(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, session.Outcome) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out session.Outcome
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestPlayScent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		code    int
		want    *session.Step
		message string
	}{
		{"explicit", `{"scent_id": 4, "duration": 10}`, http.StatusOK, &session.Step{Channel: 4, DurationSeconds: 10}, ""},
		{"defaults", `{}`, http.StatusOK, &session.Step{Channel: 1, DurationSeconds: 5}, ""},
		{"empty body", ``, http.StatusOK, &session.Step{Channel: 1, DurationSeconds: 5}, ""},
		{"id ignored", `{"id": 7}`, http.StatusOK, &session.Step{Channel: 1, DurationSeconds: 5}, ""},
		{"scent name", `{"scent_name": "campfire", "duration": 3}`, http.StatusOK, &session.Step{Channel: 12, DurationSeconds: 3}, ""},
		{"channel zero", `{"scent_id": 0}`, http.StatusBadRequest, nil, "Invalid scent_id. Must be between 1-12"},
		{"channel 13", `{"scent_id": 13}`, http.StatusBadRequest, nil, "Invalid scent_id. Must be between 1-12"},
		{"channel string", `{"scent_id": "3"}`, http.StatusBadRequest, nil, "Invalid scent_id. Must be between 1-12"},
		{"duration zero", `{"scent_id": 1, "duration": 0}`, http.StatusBadRequest, nil, "Invalid duration. Must be between 1-60 seconds"},
		{"duration 61", `{"scent_id": 1, "duration": 61}`, http.StatusBadRequest, nil, "Invalid duration. Must be between 1-60 seconds"},
		{"duration fractional", `{"duration": 2.5}`, http.StatusBadRequest, nil, "Invalid duration. Must be between 1-60 seconds"},
		{"unknown name", `{"scent_name": "rose"}`, http.StatusBadRequest, nil, `Unknown scent_name: "rose"`},
		{"not json", `{`, http.StatusBadRequest, nil, "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeSession{out: session.Outcome{Status: session.StatusSuccess, Message: "ok"}}
			r := newTestRouter(t, fs, RouteOptions{})

			w, out := doJSON(r, http.MethodPost, "/play_scent", tt.body)

			assert.Equal(t, tt.code, w.Code)
			if tt.want == nil {
				assert.Empty(t, fs.plays, "invalid input must not reach the device")
				assert.Equal(t, session.StatusError, out.Status)
				assert.Equal(t, tt.message, out.Message)
				return
			}
			require.Len(t, fs.plays, 1)
			assert.Equal(t, *tt.want, fs.plays[0])
		})
	}
}

func TestDeviceOperations_IgnoreClientCancel(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		op     string
	}{
		{"play", http.MethodPost, "/play_scent", `{"scent_id": 2}`, "play"},
		{"sequence", http.MethodPost, "/play_sequence", `{"sequence": [{"scent_id": 1}]}`, "sequence"},
		{"test connection", http.MethodGet, "/test_connection", "", "test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeSession{out: session.Outcome{Status: session.StatusSuccess}}
			r := newTestRouter(t, fs, RouteOptions{})

			ctx, cancel := context.WithCancel(context.Background())
			cancel() // 客户端已断开
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)).WithContext(ctx)
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			err, called := fs.ctxErrs[tt.op]
			require.True(t, called)
			assert.NoError(t, err)
		})
	}
}

func TestPlayScent_ErrorOutcomeIs200(t *testing.T) {
	fs := &fakeSession{out: session.Outcome{Status: session.StatusError, Message: "Failed to connect to device"}}
	r := newTestRouter(t, fs, RouteOptions{})

	w, out := doJSON(r, http.MethodPost, "/play_scent", `{"scent_id": 2}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Failed to connect to device", out.Message)
}

func TestPlaySequence(t *testing.T) {
	fs := &fakeSession{out: session.Outcome{Status: session.StatusSuccess, Message: "Sequence completed"}}
	r := newTestRouter(t, fs, RouteOptions{})

	w, out := doJSON(r, http.MethodPost, "/play_sequence",
		`{"sequence": [{"scent_id": 1, "duration": 3}, {"id": 2}, {"scent_name": "Lavender", "duration": 4}]}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Sequence completed", out.Message)
	require.Len(t, fs.seqs, 1)
	assert.Equal(t, []session.Step{
		{Channel: 1, DurationSeconds: 3},
		{Channel: 2, DurationSeconds: 5},
		{Channel: 3, DurationSeconds: 4},
	}, fs.seqs[0])
	assert.True(t, fs.seqCtxOK, "sequence context is detached from the request")
}

func TestPlaySequence_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"missing", `{}`, "No sequence provided"},
		{"empty", `{"sequence": []}`, "No sequence provided"},
		{"item not object", `{"sequence": [{"scent_id": 1}, 5]}`, "Item 1 must be a dictionary"},
		{"bad channel", `{"sequence": [{"scent_id": 1}, {"scent_id": 20}]}`, "Invalid scent_id in item 1. Must be between 1-12"},
		{"bad duration", `{"sequence": [{"scent_id": 1, "duration": 99}]}`, "Invalid duration in item 0. Must be between 1-60 seconds"},
		{"not json", `nope`, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeSession{}
			r := newTestRouter(t, fs, RouteOptions{})

			w, out := doJSON(r, http.MethodPost, "/play_sequence", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.message, out.Message)
			assert.Empty(t, fs.seqs)
		})
	}
}

func TestTestConnectionAndHealth(t *testing.T) {
	fs := &fakeSession{out: session.Outcome{Status: session.StatusSuccess, Message: "connected", WriteCharacteristic: session.CharAvailable}}
	r := newTestRouter(t, fs, RouteOptions{})

	w, out := doJSON(r, http.MethodGet, "/test_connection", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, session.CharAvailable, out.WriteCharacteristic)

	w, out = doJSON(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", out.Status)
}

func TestListScents(t *testing.T) {
	r := newTestRouter(t, &fakeSession{}, RouteOptions{})

	w, _ := doJSON(r, http.MethodGet, "/api/scents", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Scents []catalog.Scent `json:"scents"`
		Count  int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "Lavender", body.Scents[0].Name)
}

func TestRoutes_AuthProtectsControlOnly(t *testing.T) {
	fs := &fakeSession{out: session.Outcome{Status: session.StatusSuccess}}
	r := newTestRouter(t, fs, RouteOptions{Auth: middleware.AuthConfig{Enabled: true, APIKeys: []string{"sk_test_abcdefgh"}}})

	w, _ := doJSON(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(r, http.MethodPost, "/play_scent", `{}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, fs.plays)

	req := httptest.NewRequest(http.MethodPost, "/play_scent", strings.NewReader(`{}`))
	req.Header.Set("X-API-Key", "sk_test_abcdefgh")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, fs.plays, 1)
}
