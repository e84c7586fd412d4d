package service

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/server"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // viewers embed the player on other origins
	},
}

// HandleWebSocket subscribes the caller to the realtime events of one stream.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	streamID := c.Param("id")
	if _, err := h.streams.Get(c.Request.Context(), streamID); err != nil {
		respondError(c, "websocket", err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := server.NewClient(h.hub, conn, streamID, server.CallerID(c))
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
