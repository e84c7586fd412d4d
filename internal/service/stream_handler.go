package service

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/config"
	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/server"
)

// Handler serves the HTTP API on top of the services.
type Handler struct {
	config     *config.Config
	streams    *StreamService
	chunks     *ChunkService
	viewers    *ViewerService
	chat       *ChatService
	realtime   *RealtimeService
	classifier *ClassifierService
	hub        *server.Hub
}

func NewHandler(
	cfg *config.Config,
	streams *StreamService,
	chunks *ChunkService,
	viewers *ViewerService,
	chat *ChatService,
	realtime *RealtimeService,
	classifier *ClassifierService,
	hub *server.Hub,
) *Handler {
	return &Handler{
		config:     cfg,
		streams:    streams,
		chunks:     chunks,
		viewers:    viewers,
		chat:       chat,
		realtime:   realtime,
		classifier: classifier,
		hub:        hub,
	}
}

// RegisterRoutes mounts every stream route under api.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	requireAuth := server.RequireAuth(h.config.Auth.JWTSecret)
	optionalAuth := server.OptionalAuth(h.config.Auth.JWTSecret)

	streams := api.Group("/streams")
	{
		streams.POST("", requireAuth, h.CreateStream)
		streams.GET("", h.ListLiveStreams)
		streams.GET("/:id", h.GetStream)
		streams.GET("/:id/status", h.GetStatus)
		streams.POST("/:id/start", requireAuth, h.StartStream)
		streams.POST("/:id/stop", requireAuth, h.StopStream)

		streams.POST("/:id/upload-chunk", requireAuth, h.UploadChunk)
		streams.GET("/:id/chunk/:index", h.ServeChunk)

		streams.POST("/:id/viewer-count", h.UpdateViewerCount)
		streams.POST("/:id/chat", h.SendChat)
		streams.GET("/:id/chat-history", h.ChatHistory)

		streams.GET("/:id/ws", optionalAuth, h.HandleWebSocket)
		streams.POST("/:id/signal", optionalAuth, h.Signal)
		streams.POST("/:id/sfu-token", optionalAuth, h.SFUToken)

		streams.POST("/:id/classify", requireAuth, h.ClassifyFrame)
		streams.GET("/:id/classifications", h.ListClassifications)
	}
}

func (h *Handler) CreateStream(c *gin.Context) {
	var req CreateStreamRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, "create stream", bindingError(err))
		return
	}

	stream, err := h.streams.Create(c.Request.Context(), server.CallerID(c), req)
	if err != nil {
		respondError(c, "create stream", err)
		return
	}
	c.JSON(http.StatusCreated, stream)
}

func (h *Handler) ListLiveStreams(c *gin.Context) {
	streams, err := h.streams.ListLive(c.Request.Context())
	if err != nil {
		respondError(c, "list streams", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"streams": streams,
		"count":   len(streams),
	})
}

func (h *Handler) GetStream(c *gin.Context) {
	stream, err := h.streams.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "get stream", err)
		return
	}
	c.JSON(http.StatusOK, stream)
}

func (h *Handler) GetStatus(c *gin.Context) {
	view, err := h.streams.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "stream status", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) StartStream(c *gin.Context) {
	stream, err := h.streams.Start(c.Request.Context(), c.Param("id"), server.CallerID(c))
	if err != nil {
		respondError(c, "start stream", err)
		return
	}
	log.Printf("✅ Broadcast started by %s: %s", server.CallerID(c), stream.ID)
	c.JSON(http.StatusOK, gin.H{
		"message": "Stream started",
		"stream":  stream,
	})
}

func (h *Handler) StopStream(c *gin.Context) {
	stream, err := h.streams.Stop(c.Request.Context(), c.Param("id"), server.CallerID(c))
	if err != nil {
		respondError(c, "stop stream", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Stream ended",
		"stream":  stream,
	})
}
