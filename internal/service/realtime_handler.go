package service

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/server"
)

func (h *Handler) Signal(c *gin.Context) {
	var req SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "signal", bindingError(err))
		return
	}

	sender := server.CallerID(c)
	if sender == "" {
		sender = c.ClientIP()
	}
	if err := h.realtime.Signal(c.Request.Context(), c.Param("id"), sender, req); err != nil {
		respondError(c, "signal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) SFUToken(c *gin.Context) {
	var req SFUTokenRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, "sfu token", bindingError(err))
		return
	}

	token, err := h.realtime.Token(c.Request.Context(), c.Param("id"), server.CallerID(c), req)
	if err != nil {
		respondError(c, "sfu token", err)
		return
	}
	c.JSON(http.StatusOK, token)
}

func (h *Handler) ClassifyFrame(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "classify", bindingError(err))
		return
	}

	record, err := h.classifier.Classify(c.Request.Context(), c.Param("id"), server.CallerID(c), req)
	if err != nil {
		respondError(c, "classify", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) ListClassifications(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			respondError(c, "list classifications", invalidField("limit", "must be between 1 and 100"))
			return
		}
		limit = n
	}

	records, err := h.classifier.List(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, "list classifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"classifications": records,
		"count":           len(records),
	})
}
