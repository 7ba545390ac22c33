package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/luthierworks/tabliste/backend/internal/tabs"
	"go.uber.org/zap"
)

type syncPayload struct {
	SyncMethod   string `json:"syncMethod" binding:"required"`
	SimpleSync   int    `json:"simpleSync"`
	AdvancedSync string `json:"advancedSync"`
}

type audioSyncPayload struct {
	Filename string `json:"filename" binding:"required"`
	syncPayload
}

type audioRemovePayload struct {
	Filename string `json:"filename" binding:"required"`
}

type youtubeAddPayload struct {
	VideoID string `json:"videoID" binding:"required"`
}

func (p syncPayload) toSyncData() tabs.SyncData {
	return tabs.SyncData{
		SyncMethod:   tabs.SyncMethod(p.SyncMethod),
		SimpleSync:   p.SimpleSync,
		AdvancedSync: p.AdvancedSync,
	}
}

func (h *httpHandler) handleAddAudio(c *gin.Context) {
	id, ok := parseTabID(c)
	if !ok {
		return
	}
	data, filename, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": err.Error()})
		return
	}
	stored, err := h.store.AddAudio(c.Request.Context(), id, data, filename)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	h.logger.Info("audio added", zap.String("tab_id", id.String()), zap.String("filename", stored))
	c.JSON(http.StatusOK, gin.H{"ok": true, "filename": stored})
}

func (h *httpHandler) handleRemoveAudio(c *gin.Context) {
	id, ok := parseTabID(c)
	if !ok {
		return
	}
	var payload audioRemovePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": "invalid request body"})
		return
	}
	if err := h.store.RemoveAudio(id, payload.Filename); err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *httpHandler) handleAudioSync(c *gin.Context) {
	id, ok := parseTabID(c)
	if !ok {
		return
	}
	var payload audioSyncPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": "invalid request body"})
		return
	}
	if err := h.store.UpdateAudioSync(id, payload.Filename, payload.toSyncData()); err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *httpHandler) handleAddYoutube(c *gin.Context) {
	id, ok := parseTabID(c)
	if !ok {
		return
	}
	var payload youtubeAddPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": "invalid request body"})
		return
	}
	if err := h.store.AddVideo(id, payload.VideoID); err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *httpHandler) handleYoutubeSync(c *gin.Context) {
	id, ok := parseTabID(c)
	if !ok {
		return
	}
	videoID := strings.TrimSpace(c.Param("videoID"))
	var payload syncPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": "invalid request body"})
		return
	}
	if err := h.store.UpdateVideoSync(id, videoID, payload.toSyncData()); err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *httpHandler) handleRemoveYoutube(c *gin.Context) {
	id, ok := parseTabID(c)
	if !ok {
		return
	}
	if err := h.store.RemoveVideo(id, strings.TrimSpace(c.Param("videoID"))); err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleGetTabFile streams the primary tab file. The request authorizes
// either with a session or with a single-use temp token, because the
// notation renderer fetches the file without cookies.
func (h *httpHandler) handleGetTabFile(c *gin.Context) {
	id, ok := parseTabID(c)
	if !ok {
		return
	}

	if tempToken := c.Query("tempToken"); tempToken != "" {
		if err := h.tokens.Consume(c.Request.Context(), tempToken, id.String()); err != nil {
			h.logger.Info("temp token rejected", zap.String("tab_id", id.String()), zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "msg": "invalid or expired temp token"})
			return
		}
	} else if !h.hasSession(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "msg": "unauthorized"})
		return
	}

	doc, err := h.store.ReadDocument(id, false)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	path, err := h.store.TabFilePath(doc.Tab)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.FileAttachment(path, doc.Tab.OriginalFilename)
}

// handleTempToken issues a single-use token for fetching the tab file.
// Public tabs hand tokens to anonymous callers; private tabs require a
// session.
func (h *httpHandler) handleTempToken(c *gin.Context) {
	id, ok := parseTabID(c)
	if !ok {
		return
	}
	doc, err := h.store.ReadDocument(id, false)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	if !doc.Tab.Public && !h.hasSession(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "msg": "unauthorized"})
		return
	}
	token, err := h.tokens.Issue(c.Request.Context(), id.String())
	if err != nil {
		h.logger.Error("temp token issue failed", zap.String("tab_id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "msg": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "token": token})
}
