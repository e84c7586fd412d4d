package service

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/pkg/pubsub"
)

func TestViewerJoinLeave(t *testing.T) {
	env := newTestEnv(t)
	id := env.liveStream()
	path := "/api/v1/streams/" + id + "/viewer-count"

	steps := []struct {
		action string
		want   int
	}{
		{"join", 1},
		{"join", 2},
		{"leave", 1},
		{"leave", 0},
		{"leave", 0},
	}
	for _, step := range steps {
		w := env.do(http.MethodPost, path, "application/x-www-form-urlencoded",
			strings.NewReader("action="+step.action), "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decode(t, w)
		assert.Equal(t, true, body["success"])
		assert.EqualValues(t, step.want, body["viewer_count"], step.action)
	}

	_, ok := env.events.find(pubsub.EventViewerCount)
	assert.True(t, ok)
}

func TestViewerCountIsMirroredOnStream(t *testing.T) {
	env := newTestEnv(t)
	id := env.liveStream()

	for i := 0; i < 3; i++ {
		env.postJSON("/api/v1/streams/"+id+"/viewer-count", gin.H{"action": "join"}, "")
	}

	stream, err := env.store.GetStream(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 3, stream.ViewerCount)
}

func TestViewerAbsoluteCountThreshold(t *testing.T) {
	env := newTestEnv(t)
	id := env.liveStream()
	ctx := context.Background()

	count := func(n int) *ViewerCountResult {
		res, err := env.viewers.Update(ctx, id, ViewerCountRequest{Count: &n})
		require.NoError(t, err)
		return res
	}

	res := count(1)
	assert.False(t, res.Updated)
	assert.EqualValues(t, 0, res.ViewerCount)

	res = count(5)
	assert.True(t, res.Updated)
	assert.EqualValues(t, 5, res.ViewerCount)

	res = count(6)
	assert.False(t, res.Updated)
	assert.EqualValues(t, 5, res.ViewerCount)

	res = count(0)
	assert.True(t, res.Updated)
	assert.EqualValues(t, 0, res.ViewerCount)
}

func TestViewerCountValidation(t *testing.T) {
	env := newTestEnv(t)
	id := env.liveStream()
	path := "/api/v1/streams/" + id + "/viewer-count"

	w := env.postJSON(path, gin.H{}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.postJSON(path, gin.H{"action": "dance"}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.postJSON(path, gin.H{"count": -1}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	offline := env.createStream()
	w = env.postJSON("/api/v1/streams/"+offline+"/viewer-count", gin.H{"action": "join"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestViewerUpdateRejectsUnknownAction(t *testing.T) {
	env := newTestEnv(t)
	id := env.liveStream()
	n := 4

	for _, req := range []ViewerCountRequest{
		{Action: "JOIN"},
		{Action: "dance", Count: &n},
	} {
		res, err := env.viewers.Update(context.Background(), id, req)
		assert.Nil(t, res)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, req.Action)
		assert.Contains(t, verr.Fields, "action")
	}
}
