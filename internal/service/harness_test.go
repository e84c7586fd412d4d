package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/chunkstore"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/config"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/repository"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/server"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/sfu"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/vision"
)

const (
	testSecret    = "service-test-secret"
	testSFUSecret = "sfu-secret"
	owner         = "user-owner"
	stranger      = "user-stranger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type publishedEvent struct {
	Channel string
	Event   string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, channel, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Channel: channel, Event: event, Payload: payload})
	return nil
}

func (p *recordingPublisher) find(event string) (publishedEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.Event == event {
			return e, true
		}
	}
	return publishedEvent{}, false
}

type fakeUploader struct {
	keys []string
	err  error
}

func (u *fakeUploader) UploadFrame(_ context.Context, key string, _ []byte, _ string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.keys = append(u.keys, key)
	return "file:///frames/" + key, nil
}

type fakeClassifier struct {
	result   *vision.Result
	err      error
	attempts int
}

func (f *fakeClassifier) Classify(context.Context, []byte, string) (*vision.Result, int, error) {
	return f.result, f.attempts, f.err
}

type testEnv struct {
	t          *testing.T
	cfg        *config.Config
	store      *repository.SQLiteRepository
	redis      *repository.RedisRepository
	chunks     *chunkstore.Store
	events     *recordingPublisher
	uploader   *fakeUploader
	classifier *fakeClassifier

	streams  *StreamService
	chunkSvc *ChunkService
	viewers  *ViewerService
	hub      *server.Hub
	router   *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Environment: "test",
		Chunks: config.ChunkConfig{
			Dir:             t.TempDir(),
			RetentionWindow: 3,
			MaxAge:          120 * time.Second,
			MaxBytes:        1 << 20,
		},
		Chat: config.ChatConfig{
			RateLimit:            3,
			RateWindow:           10 * time.Second,
			MaxUsername:          50,
			MaxMessage:           500,
			ViewerCountThreshold: 2,
		},
		Auth: config.AuthConfig{JWTSecret: testSecret},
		SFU: config.SFUConfig{
			URL:       "ws://sfu.test:7880",
			APIKey:    "sfu-key",
			APISecret: testSFUSecret,
			TokenTTL:  time.Hour,
		},
	}

	store, err := repository.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	redisRepo := repository.NewRedisRepositoryWithClient(client)

	chunks, err := chunkstore.New(cfg.Chunks.Dir)
	require.NoError(t, err)

	env := &testEnv{
		t:          t,
		cfg:        cfg,
		store:      store,
		redis:      redisRepo,
		chunks:     chunks,
		events:     &recordingPublisher{},
		uploader:   &fakeUploader{},
		classifier: &fakeClassifier{},
	}

	env.streams = NewStreamService(cfg, store, store, redisRepo, chunks, env.events)
	env.chunkSvc = NewChunkService(&cfg.Chunks, env.streams, chunks, env.events)
	env.viewers = NewViewerService(cfg.Chat.ViewerCountThreshold, env.streams, store, redisRepo, env.events)
	chat := NewChatService(&cfg.Chat, env.streams, store, redisRepo, env.events)
	minter := sfu.NewMinter(cfg.SFU.URL, cfg.SFU.APIKey, cfg.SFU.APISecret, cfg.SFU.TokenTTL)
	realtime := NewRealtimeService(env.streams, minter, env.events)
	classifier := NewClassifierService(env.streams, store, env.uploader, env.classifier, env.events)

	env.hub = server.NewWebSocketHub()
	handler := NewHandler(cfg, env.streams, env.chunkSvc, env.viewers, chat, realtime, classifier, env.hub)
	env.router, err = server.NewRouter(false, nil)
	require.NoError(t, err)
	handler.RegisterRoutes(env.router.Group("/api/v1"))
	return env
}

func (e *testEnv) token(sub string) string {
	e.t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(e.t, err)
	return signed
}

func (e *testEnv) do(method, path, contentType string, body io.Reader, caller string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if caller != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(caller))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(http.MethodGet, path, "", nil, "")
}

func (e *testEnv) postJSON(path string, body any, caller string) *httptest.ResponseRecorder {
	e.t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(e.t, err)
	return e.do(http.MethodPost, path, "application/json", bytes.NewReader(raw), caller)
}

func (e *testEnv) upload(streamID string, index string, data []byte, caller string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if index != "" {
		require.NoError(e.t, mw.WriteField("index", index))
	}
	require.NoError(e.t, mw.WriteField("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10)))
	if data != nil {
		part, err := mw.CreateFormFile("chunk", "chunk.webm")
		require.NoError(e.t, err)
		_, err = part.Write(data)
		require.NoError(e.t, err)
	}
	require.NoError(e.t, mw.Close())
	return e.do(http.MethodPost, "/api/v1/streams/"+streamID+"/upload-chunk", mw.FormDataContentType(), &buf, caller)
}

func (e *testEnv) uploadN(streamID string, indices ...int) {
	e.t.Helper()
	for _, i := range indices {
		w := e.upload(streamID, strconv.Itoa(i), []byte("segment-"+strconv.Itoa(i)), owner)
		require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	}
}

// createStream returns the id of a new scheduled stream owned by owner.
func (e *testEnv) createStream() string {
	e.t.Helper()
	w := e.postJSON("/api/v1/streams", gin.H{"title": "Summit of Rinjani"}, owner)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decode(e.t, w)["id"].(string)
}

func (e *testEnv) start(streamID string) {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/v1/streams/"+streamID+"/start", "", nil, owner)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
}

func (e *testEnv) stop(streamID string) {
	e.t.Helper()
	w := e.do(http.MethodPost, "/api/v1/streams/"+streamID+"/stop", "", nil, owner)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
}

func (e *testEnv) liveStream() string {
	id := e.createStream()
	e.start(id)
	return id
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}
