package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snaplate/backend/internal/auth"
	"github.com/snaplate/backend/internal/capture"
	"github.com/snaplate/backend/internal/config"
	"github.com/snaplate/backend/internal/db"
	"github.com/snaplate/backend/internal/dispatch"
	"github.com/snaplate/backend/internal/history"
	"github.com/snaplate/backend/internal/imaging"
	"github.com/snaplate/backend/internal/projector"
	"github.com/snaplate/backend/internal/translate"
)

type fakeTranslator struct {
	mu    sync.Mutex
	langs []string
	fn    func(ctx context.Context) (translate.Result, error)
}

func (f *fakeTranslator) Translate(ctx context.Context, image []byte, targetLanguage string) (translate.Result, error) {
	f.mu.Lock()
	f.langs = append(f.langs, targetLanguage)
	f.mu.Unlock()
	return f.fn(ctx)
}

func (f *fakeTranslator) lastLanguage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.langs) == 0 {
		return ""
	}
	return f.langs[len(f.langs)-1]
}

func answering(res translate.Result, err error) *fakeTranslator {
	return &fakeTranslator{fn: func(ctx context.Context) (translate.Result, error) { return res, err }}
}

func hanging() *fakeTranslator {
	return &fakeTranslator{fn: func(ctx context.Context) (translate.Result, error) {
		<-ctx.Done()
		return translate.Result{}, ctx.Err()
	}}
}

var hola = translate.Result{DetectedLanguage: "Spanish", TranslatedText: "Hola", OriginalText: "Hello"}

type testServer struct {
	*httptest.Server
	token string
	t     *testing.T
}

func newTestServer(t *testing.T, tr translate.Translator, tweak func(*config.Config)) *testServer {
	t.Helper()
	cfg := &config.Config{
		MaxUploadBytes: 1 << 20,
		Translate:      config.TranslateConfig{TargetLanguage: "English"},
		Wait:           config.WaitConfig{Interval: 10 * time.Millisecond, MaxAttempts: 200},
		RateLimit:      config.RateLimitConfig{Requests: 100, Window: time.Minute},
	}
	if tweak != nil {
		tweak(cfg)
	}

	database, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "api.db"), false)
	require.NoError(t, err)
	require.NoError(t, database.EnsureAdmin(context.Background(), "admin", "secret"))

	jwtService := auth.NewJWTService("test-secret")
	store := history.NewSQLStore(database.DB())
	queue := dispatch.NewQueue(2, nil)
	orch := capture.New(capture.Options{
		Translator:     tr,
		Store:          store,
		Dispatcher:     queue,
		Image:          imaging.DefaultOptions(),
		TargetLanguage: cfg.Translate.TargetLanguage,
	})
	router, stop := NewRouter(Deps{
		Config:       cfg,
		Database:     database,
		JWT:          jwtService,
		Orchestrator: orch,
		Projector:    projector.New(store, time.UTC, nil),
		Queue:        queue,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		stop()
		orch.Close()
		queue.Stop()
		database.Close()
	})

	ts := &testServer{Server: srv, t: t}
	ts.token = ts.login("admin", "secret")
	return ts
}

func (ts *testServer) login(username, password string) string {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	require.Equal(ts.t, http.StatusOK, resp.StatusCode)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Token
}

func (ts *testServer) do(method, path string, body io.Reader, contentType string) *http.Response {
	ts.t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(ts.t, err)
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	ts.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func pngBody(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 9))))
	return buf.Bytes()
}

type startBody struct {
	Generation uint64        `json:"generation"`
	State      capture.State `json:"state"`
}

func (ts *testServer) submit(query string) uint64 {
	ts.t.Helper()
	resp := ts.do(http.MethodPost, "/api/captures"+query, bytes.NewReader(pngBody(ts.t)), "image/png")
	require.Equal(ts.t, http.StatusAccepted, resp.StatusCode)
	out := decode[startBody](ts.t, resp)
	assert.True(ts.t, out.State.Loading)
	return out.Generation
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, answering(hola, nil), nil)
	ts.token = ""
	resp := ts.do(http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, answering(hola, nil), nil)

	body := strings.NewReader(`{"username":"admin","password":"wrong"}`)
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	me := decode[map[string]any](t, ts.do(http.MethodGet, "/api/auth/me", nil, ""))
	assert.Equal(t, "admin", me["username"])
	assert.Equal(t, "admin", me["role"])

	ts.token = ""
	for _, path := range []string{"/api/auth/me", "/api/history", "/api/captures/current", "/api/tasks"} {
		assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, path, nil, "").StatusCode, path)
	}
}

func TestCaptureToHistory(t *testing.T) {
	tr := answering(hola, nil)
	ts := newTestServer(t, tr, nil)

	gen := ts.submit("?target_language=French")
	assert.Equal(t, uint64(1), gen)

	resp := ts.do(http.MethodGet, "/api/captures/current/wait?generation=1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[capture.State](t, resp)
	assert.Equal(t, capture.PhaseSucceeded, st.Phase)
	assert.False(t, st.Loading)
	require.NotNil(t, st.Result)
	assert.Equal(t, hola, *st.Result)
	require.NotNil(t, st.RecordID)
	assert.Equal(t, "French", tr.lastLanguage())

	items := decode[[]projector.DisplayItem](t, ts.do(http.MethodGet, "/api/history", nil, ""))
	require.Len(t, items, 1)
	assert.Equal(t, *st.RecordID, items[0].ID)
	assert.Equal(t, hola, items[0].Result)
	assert.NotEmpty(t, items[0].FormattedDate)
	require.NotNil(t, items[0].Image)
	assert.Equal(t, "jpeg", items[0].Image.Format)

	id := items[0].ID.String()
	detail := decode[projector.DisplayItem](t, ts.do(http.MethodGet, "/api/history/"+id, nil, ""))
	assert.Equal(t, "Hello", detail.Result.OriginalText)

	img := ts.do(http.MethodGet, "/api/history/"+id+"/image", nil, "")
	assert.Equal(t, http.StatusOK, img.StatusCode)
	assert.Equal(t, "image/jpeg", img.Header.Get("Content-Type"))

	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/api/history/"+id, nil, "").StatusCode)
	assert.Empty(t, decode[[]projector.DisplayItem](t, ts.do(http.MethodGet, "/api/history", nil, "")))
	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/api/history/"+id, nil, "").StatusCode, "unknown id is a no-op")
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/history/"+id, nil, "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/history/not-a-uuid", nil, "").StatusCode)
}

func TestCaptureMultipartUsesSettingsLanguage(t *testing.T) {
	tr := answering(hola, nil)
	ts := newTestServer(t, tr, nil)

	resp := ts.do(http.MethodPut, "/api/settings", strings.NewReader(`{"target_language":"German"}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	settings := decode[map[string]string](t, resp)
	assert.Equal(t, "German", settings["target_language"])
	assert.Equal(t, "English", settings["default_language"])

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "menu.png")
	require.NoError(t, err)
	part.Write(pngBody(t))
	require.NoError(t, mw.Close())

	resp = ts.do(http.MethodPost, "/api/captures", &body, mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = ts.do(http.MethodGet, "/api/captures/current/wait", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "German", tr.lastLanguage())

	// clearing the override falls back to the configured default
	resp = ts.do(http.MethodPut, "/api/settings", strings.NewReader(`{"target_language":""}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "English", decode[map[string]string](t, resp)["target_language"])
}

func TestCaptureFailureSurfacesGenericAlert(t *testing.T) {
	ts := newTestServer(t, answering(translate.Result{}, &translate.Error{
		Kind: translate.KindDecode, Err: errors.New("unexpected token at offset 17"),
	}), nil)

	gen := ts.submit("")
	resp := ts.do(http.MethodGet, "/api/captures/current/wait?generation="+itoa(gen), nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "offset 17")

	var st capture.State
	require.NoError(t, json.Unmarshal(raw, &st))
	assert.Equal(t, capture.PhaseFailed, st.Phase)
	assert.False(t, st.Loading)
	assert.Nil(t, st.Result)
	assert.Equal(t, capture.KindDecode, st.Error.Kind)
	assert.Equal(t, "Translation Error", st.Alert.Title)

	assert.Empty(t, decode[[]projector.DisplayItem](t, ts.do(http.MethodGet, "/api/history", nil, "")))
}

func TestEmptyUploadIsImageError(t *testing.T) {
	ts := newTestServer(t, answering(hola, nil), nil)

	resp := ts.do(http.MethodPost, "/api/captures", nil, "image/png")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	st := decode[capture.State](t, ts.do(http.MethodGet, "/api/captures/current/wait", nil, ""))
	assert.Equal(t, capture.KindImageSourceUnavailable, st.Error.Kind)
	assert.Equal(t, "Image Error", st.Alert.Title)
}

func TestWaitTimesOut(t *testing.T) {
	ts := newTestServer(t, hanging(), func(cfg *config.Config) {
		cfg.Wait = config.WaitConfig{Interval: 10 * time.Millisecond, MaxAttempts: 5}
	})

	gen := ts.submit("")
	resp := ts.do(http.MethodGet, "/api/captures/current/wait?generation="+itoa(gen), nil, "")
	require.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)

	st := decode[capture.State](t, resp)
	assert.False(t, st.Loading)
	assert.Equal(t, capture.KindTimeout, st.Error.Kind)
	assert.Equal(t, "Translation Failed", st.Alert.Title)
}

func TestWaitOnSupersededGeneration(t *testing.T) {
	ts := newTestServer(t, hanging(), nil)

	first := ts.submit("")
	second := ts.submit("")
	assert.Greater(t, second, first)

	resp := ts.do(http.MethodGet, "/api/captures/current/wait?generation="+itoa(first), nil, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/captures/current/wait?generation=99", nil, "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/captures/current/wait?generation=x", nil, "").StatusCode)
}

func TestAcknowledgeAndReset(t *testing.T) {
	ts := newTestServer(t, answering(hola, nil), nil)

	gen := ts.submit("")
	ts.do(http.MethodGet, "/api/captures/current/wait?generation="+itoa(gen), nil, "")

	resp := ts.do(http.MethodPost, "/api/captures/current/ack?generation="+itoa(gen), nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, capture.PhaseIdle, decode[capture.State](t, resp).Phase)

	assert.Equal(t, http.StatusConflict,
		ts.do(http.MethodPost, "/api/captures/current/ack?generation="+itoa(gen), nil, "").StatusCode)

	resp = ts.do(http.MethodDelete, "/api/captures/current", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[capture.State](t, resp)
	assert.Equal(t, gen+1, st.Generation)
	assert.Equal(t, capture.PhaseIdle, st.Phase)
}

func TestTasks(t *testing.T) {
	ts := newTestServer(t, answering(hola, nil), nil)

	gen := ts.submit("")
	ts.do(http.MethodGet, "/api/captures/current/wait?generation="+itoa(gen), nil, "")

	var tasks []dispatch.Task
	require.Eventually(t, func() bool {
		tasks = decode[[]dispatch.Task](t, ts.do(http.MethodGet, "/api/tasks", nil, ""))
		return len(tasks) == 1 && tasks[0].Status == dispatch.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, dispatch.TaskTranslate, tasks[0].Type)

	task := decode[dispatch.Task](t, ts.do(http.MethodGet, "/api/tasks/"+tasks[0].ID, nil, ""))
	assert.Equal(t, tasks[0].ID, task.ID)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/tasks/nope", nil, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodDelete, "/api/tasks/nope", nil, "").StatusCode)
}

func TestCaptureRateLimited(t *testing.T) {
	ts := newTestServer(t, hanging(), func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Requests: 2, Window: time.Minute}
	})

	ts.submit("")
	ts.submit("")
	resp := ts.do(http.MethodPost, "/api/captures", bytes.NewReader(pngBody(t)), "image/png")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestUploadTooLarge(t *testing.T) {
	ts := newTestServer(t, answering(hola, nil), func(cfg *config.Config) {
		cfg.MaxUploadBytes = 16
	})
	resp := ts.do(http.MethodPost, "/api/captures", bytes.NewReader(pngBody(t)), "image/png")
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func itoa(n uint64) string {
	return strconv.FormatUint(n, 10)
}
