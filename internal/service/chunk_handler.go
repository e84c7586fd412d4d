package service

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/server"
)

// UploadChunk receives one media segment as multipart form fields index, chunk and timestamp.
func (h *Handler) UploadChunk(c *gin.Context) {
	streamID := c.Param("id")
	maxBytes := h.config.Chunks.MaxBytes

	// multipart overhead on top of the segment itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)
	tooLarge := fmt.Sprintf("must be at most %d bytes", maxBytes)

	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(c, "upload chunk", invalidField("chunk", tooLarge))
			return
		}
	}

	fields := map[string]string{}
	index, err := strconv.Atoi(c.PostForm("index"))
	switch {
	case c.PostForm("index") == "":
		fields["index"] = "is required"
	case err != nil || index < 0:
		fields["index"] = "must be a non-negative integer"
	}

	file, header, err := c.Request.FormFile("chunk")
	switch {
	case err != nil:
		fields["chunk"] = "is required"
	case header.Size > maxBytes:
		fields["chunk"] = tooLarge
	}
	if file != nil {
		defer file.Close()
	}
	if len(fields) > 0 {
		respondError(c, "upload chunk", &ValidationError{Fields: fields})
		return
	}

	chunk, err := h.chunks.Ingest(c.Request.Context(), streamID, server.CallerID(c), index, file)
	if err != nil {
		respondError(c, "upload chunk", err)
		return
	}

	if ts := c.PostForm("timestamp"); ts != "" {
		log.Printf("📦 Chunk %d of %s stored (%d bytes, client ts %s)", index, streamID, chunk.Size, ts)
	} else {
		log.Printf("📦 Chunk %d of %s stored (%d bytes)", index, streamID, chunk.Size)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"index":   chunk.Index,
		"size":    chunk.Size,
	})
}

// ServeChunk returns one segment of the current session. Offline streams get an empty 404.
func (h *Handler) ServeChunk(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		respondError(c, "serve chunk", invalidField("index", "must be a non-negative integer"))
		return
	}

	data, err := h.chunks.Serve(c.Request.Context(), c.Param("id"), index)
	if err != nil {
		if errors.Is(err, ErrStreamNotFound) || errors.Is(err, ErrStreamNotLive) {
			c.Status(http.StatusNotFound)
			return
		}
		respondError(c, "serve chunk", err)
		return
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Data(http.StatusOK, "video/webm", data)
}
