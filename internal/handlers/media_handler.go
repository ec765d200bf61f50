package handlers

import (
	"bufio"
	"errors"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mebelplace/mebelplace-backend/internal/httpx"
	"github.com/mebelplace/mebelplace-backend/internal/service"
	"github.com/mebelplace/mebelplace-backend/internal/storage"
)

type MediaHandler struct {
	mediaService *service.MediaService
}

func NewMediaHandler(mediaService *service.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, "\"")
	return v
}

// GetChatFile streams an attachment to a participant of its chat.
func (h *MediaHandler) GetChatFile(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	key := storage.ChatFilesPrefix + "/" + strings.TrimSpace(c.Params("*"))
	obj, st, err := h.mediaService.OpenFile(c.UserContext(), userID, key)
	if err != nil {
		if errors.Is(err, service.ErrStorageNotConfigured) {
			return httpx.ServiceUnavailable(c, "storage_not_configured", "Storage not configured")
		}
		return httpx.FromError(c, err)
	}

	etag := st.ETag
	if etag != "" {
		c.Set("ETag", "\""+etag+"\"")
		if inm := normalizeETag(c.Get("If-None-Match")); inm != "" && inm == normalizeETag(etag) {
			_ = obj.Close()
			return c.SendStatus(fiber.StatusNotModified)
		}
	}
	if !st.LastModified.IsZero() {
		c.Set("Last-Modified", st.LastModified.UTC().Format(time.RFC1123))
	}

	// Keys are content-unique, so the object never changes.
	c.Set("Cache-Control", "private, max-age=31536000, immutable")
	contentType := st.ContentType
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, contentType)
	if st.Size > 0 {
		c.Set("Content-Length", strconv.FormatInt(st.Size, 10))
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			_ = obj.Close()
		}()

		n, copyErr := io.Copy(w, obj)
		flushErr := w.Flush()

		if copyErr != nil {
			log.Printf("[media] chat file stream error key=%q copied=%d err=%v", key, n, copyErr)
			return
		}
		if flushErr != nil {
			log.Printf("[media] chat file flush error key=%q copied=%d err=%v", key, n, flushErr)
		}
	})
	return nil
}
