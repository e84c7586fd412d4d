package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/pubsub"
)

func TestChatRateLimit(t *testing.T) {
	env := newTestEnv(t)
	id := env.liveStream()
	path := "/api/v1/streams/" + id + "/chat"

	for i := 0; i < 3; i++ {
		w := env.postJSON(path, gin.H{"username": "ana", "message": "hi"}, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := env.postJSON(path, gin.H{"username": "ana", "message": "hi again"}, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.GreaterOrEqual(t, body["wait"].(float64), 0.0)
	assert.Contains(t, body["error"], "Please wait")
}

func TestChatRateLimitIgnoresForwardedFor(t *testing.T) {
	env := newTestEnv(t)
	id := env.liveStream()
	raw, err := json.Marshal(gin.H{"username": "ana", "message": "hi"})
	require.NoError(t, err)

	send := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/streams/"+id+"/chat", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		req.RemoteAddr = "198.51.100.7:52000"
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w.Code
	}

	for i := 1; i <= 3; i++ {
		require.Equal(t, http.StatusOK, send(fmt.Sprintf("203.0.113.%d", i)))
	}
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.99"))
}

func TestChatStripsMarkupAndValidates(t *testing.T) {
	env := newTestEnv(t)
	id := env.liveStream()
	path := "/api/v1/streams/" + id + "/chat"

	w := env.postJSON(path, gin.H{"username": "<b>ana</b>", "message": "hello <script>alert(1)</script>world"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ana", body["username"])
	assert.Equal(t, "hello world", body["message"])
	assert.NotEmpty(t, body["timestamp"])

	w = env.postJSON(path, gin.H{"username": "&lt;b&gt;eve", "message": "&lt;script&gt;alert(1)&lt;/script&gt;"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, "&lt;b&gt;eve", body["username"])
	assert.Equal(t, "&lt;script&gt;alert(1)&lt;/script&gt;", body["message"])
	assert.NotContains(t, body["message"], "<script>")

	event, ok := env.events.find(pubsub.EventChatMessage)
	require.True(t, ok)
	assert.Equal(t, pubsub.StreamChannel(id), event.Channel)

	w = env.postJSON(path, gin.H{"username": "<i></i>", "message": "hi"}, "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode(t, w)["fields"], "username")

	w = env.postJSON(path, gin.H{"username": "ana", "message": strings.Repeat("a", 501)}, "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode(t, w)["fields"], "message")

	w = env.postJSON(path, gin.H{"username": "ana"}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// rejected messages do not use up the quota
	for i := 0; i < 2; i++ {
		w = env.postJSON(path, gin.H{"username": "ana", "message": "ok"}, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
}

func TestChatHistoryIsChronological(t *testing.T) {
	env := newTestEnv(t)
	id := env.liveStream()

	for _, msg := range []string{"first", "second", "third"} {
		w := env.postJSON("/api/v1/streams/"+id+"/chat", gin.H{"username": "ana", "message": msg}, "")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.get("/api/v1/streams/" + id + "/chat-history")
	require.Equal(t, http.StatusOK, w.Code)
	messages := decode(t, w)["messages"].([]any)
	require.Len(t, messages, 3)
	for i, want := range []string{"first", "second", "third"} {
		assert.Equal(t, want, messages[i].(map[string]any)["message"])
	}
}

func TestChatRequiresLiveStream(t *testing.T) {
	env := newTestEnv(t)
	id := env.createStream()

	w := env.postJSON("/api/v1/streams/"+id+"/chat", gin.H{"username": "ana", "message": "hi"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.get("/api/v1/streams/" + id + "/chat-history")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStripMarkup(t *testing.T) {
	cases := map[string]string{
		"plain":                                 "plain",
		"  padded  ":                            "padded",
		"<b>bold</b> text":                      "bold text",
		"<style>p{}</style>styled":              "styled",
		"<script>x()</script>":                  "",
		"a &amp; b":                             "a &amp; b",
		"<img src=x onerror=alert(1)>ok":        "ok",
		"&lt;script&gt;alert(1)&lt;/script&gt;": "&lt;script&gt;alert(1)&lt;/script&gt;",
		"&lt;img src=x onerror=alert(1)&gt;":    "&lt;img src=x onerror=alert(1)&gt;",
	}
	for in, want := range cases {
		assert.Equal(t, want, StripMarkup(in), in)
	}
}
