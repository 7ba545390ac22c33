package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/luthierworks/tabliste/backend/internal/tabs"
	"go.uber.org/zap"
)

// maxUploadBytes bounds a single uploaded tab or audio file.
const maxUploadBytes = 256 << 20

type updateTabPayload struct {
	Title  string `json:"title" binding:"required"`
	Artist string `json:"artist"`
	Public bool   `json:"public"`
}

type favPayload struct {
	Fav bool `json:"fav"`
}

// readUpload extracts the "file" part of a multipart request.
func readUpload(c *gin.Context) (data []byte, filename string, err error) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("no file uploaded")
	}
	if header.Size > maxUploadBytes {
		return nil, "", fmt.Errorf("file too large")
	}
	data, err = readMultipartFile(header)
	if err != nil {
		return nil, "", err
	}
	return data, header.Filename, nil
}

func readMultipartFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(io.LimitReader(file, maxUploadBytes))
}

func (h *httpHandler) handleNewTab(c *gin.Context) {
	data, filename, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": err.Error()})
		return
	}
	ext := tabs.FileExtension(filename)
	if !tabs.IsSupportedTabFormat(ext) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": "unsupported file format: " + ext})
		return
	}

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = filename
	}
	artist := strings.TrimSpace(c.PostForm("artist"))

	id, err := h.store.AllocateNextID(c.Request.Context())
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	if _, err := h.store.CreateDocument(id, data, ext, title, artist, filename); err != nil {
		h.respondStoreError(c, err)
		return
	}

	h.logger.Info("tab created", zap.String("tab_id", id.String()), zap.String("title", title))
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": id.String()})
}

func (h *httpHandler) handleListTabs(c *gin.Context) {
	infos, err := h.store.ListAll()
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "tabs": infos})
}

func (h *httpHandler) handleGetTab(c *gin.Context) {
	id, ok := parseTabID(c)
	if !ok {
		return
	}
	doc, err := h.store.ReadDocument(id, true)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	if !doc.Tab.Public && !h.hasSession(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "msg": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"tab":     doc.Tab,
		"audio":   doc.Audio,
		"youtube": doc.YouTube,
	})
}

func (h *httpHandler) handleUpdateTab(c *gin.Context) {
	id, ok := parseTabID(c)
	if !ok {
		return
	}
	var payload updateTabPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": "invalid request body"})
		return
	}
	err := h.store.UpdateTabInfo(id, tabs.TabInfoUpdate{
		Title:  payload.Title,
		Artist: payload.Artist,
		Public: payload.Public,
	})
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *httpHandler) handleSetFavorite(c *gin.Context) {
	id, ok := parseTabID(c)
	if !ok {
		return
	}
	var payload favPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": "invalid request body"})
		return
	}
	if err := h.store.SetFavorite(id, payload.Fav); err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *httpHandler) handleReplaceTab(c *gin.Context) {
	id, ok := parseTabID(c)
	if !ok {
		return
	}
	data, filename, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": err.Error()})
		return
	}
	ext := tabs.FileExtension(filename)
	if !tabs.IsSupportedTabFormat(ext) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "msg": "unsupported file format: " + ext})
		return
	}
	if err := h.store.ReplaceTabFile(id, data, ext, filename); err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *httpHandler) handleDeleteTab(c *gin.Context) {
	id, ok := parseTabID(c)
	if !ok {
		return
	}
	if err := h.store.SoftDelete(id); err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
