package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"wp_schema_sync/internal/model"
	"wp_schema_sync/internal/session"
	"wp_schema_sync/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	userHeader       = "X-User-ID"
	maxUploadSize    = 20 << 20
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	webhookSecretHdr = "X-Telegram-Bot-Api-Secret-Token"
)

// handleUpload runs a batch from a multipart xlsx upload and streams its
// progress as server-sent events: log, summary, result and error.
// POST /api/batches?mode=insert|delete
func (s *Server) handleUpload(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(userHeader))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + userHeader + " header"})
		return
	}

	mode, err := model.ParseMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if fileHeader.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open upload"})
		return
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}

	batch, err := s.controller.ParseUpload(data, mode)
	if err != nil {
		log.Warn().Err(err).Str("user", userID).Str("file", fileHeader.Filename).Msg("Rejected upload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	replier := &sseReplier{c: c, userID: userID, downloads: s.downloads}
	_, err = s.controller.RunBatch(c.Request.Context(), userID, mode, batch, replier, "http:"+userID)
	if errors.Is(err, session.ErrBusy) {
		// nothing has been streamed yet
		c.Writer.Header().Del("Content-Type")
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		replier.event("error", gin.H{"error": err.Error()})
	}
}

// POST /api/batches/cancel
func (s *Server) handleCancel(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(userHeader))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + userHeader + " header"})
		return
	}
	if !s.controller.Cancel(userID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no running batch"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"cancelled": true})
}

// GET /api/results/:token
func (s *Server) handleDownload(c *gin.Context) {
	download, ok := s.downloads.get(c.Param("token"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found or expired"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.filename))
	c.Data(http.StatusOK, xlsxContentType, download.data)
}

// handleWebhook accepts a Telegram update and queues it behind earlier updates
// from the same chat, so Telegram gets its 200 right away.
// POST /telegram/webhook/:secret
func (s *Server) handleWebhook(c *gin.Context) {
	if subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(s.webhookSecret)) != 1 {
		c.Status(http.StatusNotFound)
		return
	}
	if header := c.GetHeader(webhookSecretHdr); header != "" && header != s.webhookSecret {
		c.Status(http.StatusUnauthorized)
		return
	}

	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update"})
		return
	}

	s.updates.push(update)
	c.Status(http.StatusOK)
}

// sseReplier turns session replies into server-sent events. Result workbooks
// are parked in the download store and announced by token.
type sseReplier struct {
	c         *gin.Context
	userID    string
	downloads *downloadStore
}

func (r *sseReplier) Text(ctx context.Context, text string) error {
	return r.event("log", gin.H{"message": text})
}

func (r *sseReplier) Document(ctx context.Context, filename string, data []byte, caption string) error {
	token := r.downloads.put(r.userID, filename, data)
	if err := r.event("summary", gin.H{"message": caption}); err != nil {
		return err
	}
	return r.event("result", gin.H{
		"token":    token,
		"filename": filename,
		"url":      "/api/results/" + token,
	})
}

func (r *sseReplier) event(name string, data any) error {
	if err := r.c.Request.Context().Err(); err != nil {
		return err
	}
	r.c.SSEvent(name, data)
	r.c.Writer.Flush()
	return nil
}
