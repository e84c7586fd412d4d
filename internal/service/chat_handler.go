package service

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *Handler) SendChat(c *gin.Context) {
	var req SendChatRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, "send chat", bindingError(err))
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), c.Param("id"), c.ClientIP(), req)
	if err != nil {
		respondError(c, "send chat", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"id":        msg.ID,
		"username":  msg.Username,
		"message":   msg.Message,
		"timestamp": msg.CreatedAt.Format(time.RFC3339),
	})
}

func (h *Handler) ChatHistory(c *gin.Context) {
	messages, err := h.chat.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "chat history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

func (h *Handler) UpdateViewerCount(c *gin.Context) {
	var req ViewerCountRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, "viewer count", bindingError(err))
		return
	}

	result, err := h.viewers.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, "viewer count", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"viewer_count": result.ViewerCount,
		"updated":      result.Updated,
	})
}
