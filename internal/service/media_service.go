package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/mebelplace/mebelplace-backend/internal/apperr"
	"github.com/mebelplace/mebelplace-backend/internal/models"
	"github.com/mebelplace/mebelplace-backend/internal/repository"
	"github.com/mebelplace/mebelplace-backend/internal/storage"
	"github.com/mebelplace/mebelplace-backend/internal/validation"
)

var (
	ErrStorageNotConfigured = errors.New("storage not configured")
	ErrFileNotFound         = apperr.NotFound("file_not_found", "File not found")
	ErrFileTooLarge         = apperr.Validation("file_too_large", "File is too large")
	ErrInvalidImage         = apperr.Validation("invalid_image", "Image could not be processed")
)

// MaxUploadBytes bounds non-photo attachments.
const MaxUploadBytes = 50 * 1024 * 1024

type Upload struct {
	Body        io.Reader
	FileName    string
	Size        int64
	ContentType string
	Caption     string
	ReplyTo     *uint
}

// MediaService stores chat attachments and posts them as file messages.
type MediaService struct {
	store    storage.ObjectStore
	chatRepo repository.ChatRepositoryInterface
	messages *MessageService
	photo    storage.ImageOptions
}

// NewMediaService accepts a nil store; uploads then fail with
// ErrStorageNotConfigured.
func NewMediaService(store storage.ObjectStore, chatRepo repository.ChatRepositoryInterface, messages *MessageService) *MediaService {
	return &MediaService{
		store:    store,
		chatRepo: chatRepo,
		messages: messages,
		photo:    storage.DefaultPhotoOptions(),
	}
}

type classifiedUpload struct {
	kind        models.MessageType
	body        io.Reader
	size        int64
	contentType string
	fileName    string
	meta        models.MessageMetadata
}

// classify sniffs photos by magic bytes and normalizes them; everything else
// is typed by its declared content type and stored untouched.
func (s *MediaService) classify(up Upload) (classifiedUpload, error) {
	br := bufio.NewReaderSize(up.Body, 512)
	header, _ := br.Peek(12)

	if _, err := storage.DetectImageType(header); err == nil {
		img, err := storage.NormalizeImage(br, s.photo)
		if err != nil {
			if errors.Is(err, storage.ErrTooLarge) {
				return classifiedUpload{}, ErrFileTooLarge
			}
			return classifiedUpload{}, ErrInvalidImage.Wrap(err)
		}
		name := strings.TrimSuffix(up.FileName, path.Ext(up.FileName)) + ".jpg"
		return classifiedUpload{
			kind:        models.ImageMessage,
			body:        bytes.NewReader(img.Data),
			size:        int64(len(img.Data)),
			contentType: img.ContentType,
			fileName:    name,
			meta:        models.MessageMetadata{Caption: up.Caption, MimeType: img.ContentType, Width: img.Width, Height: img.Height},
		}, nil
	}

	if up.Size <= 0 || up.Size > MaxUploadBytes {
		return classifiedUpload{}, ErrFileTooLarge
	}
	ct := strings.ToLower(strings.TrimSpace(up.ContentType))
	if ct == "" {
		ct = "application/octet-stream"
	}
	kind := models.FileMessage
	switch {
	case strings.HasPrefix(ct, "video/"):
		kind = models.VideoMessage
	case ct == "audio/ogg" || ct == "audio/webm" || strings.HasPrefix(ct, "audio/ogg;"):
		kind = models.VoiceMessage
	case strings.HasPrefix(ct, "audio/"):
		kind = models.AudioMessage
	}
	return classifiedUpload{
		kind:        kind,
		body:        br,
		size:        up.Size,
		contentType: ct,
		fileName:    up.FileName,
		meta:        models.MessageMetadata{Caption: up.Caption, MimeType: ct},
	}, nil
}

func placeholder(kind models.MessageType, fileName string) string {
	switch kind {
	case models.ImageMessage:
		return "[Photo]"
	case models.VideoMessage:
		return "[Video]"
	case models.AudioMessage:
		return "[Audio]"
	case models.VoiceMessage:
		return "[Voice message]"
	}
	return fmt.Sprintf("[File: %s]", fileName)
}

// SendFile uploads an attachment into chatID and posts it as a message from
// senderID. The object is removed again if the message cannot be stored.
func (s *MediaService) SendFile(ctx context.Context, senderID, chatID uint, up Upload) (*models.MessageResponse, error) {
	if s.store == nil {
		return nil, ErrStorageNotConfigured
	}
	name, err := validation.FileName(up.FileName)
	if err != nil {
		return nil, err
	}
	up.FileName = name
	up.Caption = validation.TrimAndLimit(up.Caption, validation.DefaultMaxMessageLength)
	if err := requireParticipant(ctx, s.chatRepo, chatID, senderID); err != nil {
		return nil, err
	}

	file, err := s.classify(up)
	if err != nil {
		return nil, err
	}

	key := storage.ChatFileKey(chatID, file.fileName)
	if _, err := s.store.PutObject(ctx, key, file.body, file.size, file.contentType); err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	msg, err := s.messages.Send(ctx, senderID, SendMessageInput{
		ChatID:   chatID,
		Content:  placeholder(file.kind, file.fileName),
		Type:     string(file.kind),
		ReplyTo:  up.ReplyTo,
		Metadata: file.meta,
		FilePath: key,
		FileName: file.fileName,
		FileSize: file.size,
	})
	if err != nil {
		if derr := s.store.DeleteObject(context.WithoutCancel(ctx), key); derr != nil {
			log.Printf("Failed to remove orphaned object %s: %v", key, derr)
		}
		return nil, err
	}
	return msg, nil
}

// OpenFile streams an attachment to a participant of the chat that owns it.
func (s *MediaService) OpenFile(ctx context.Context, userID uint, key string) (io.ReadCloser, storage.ObjectStat, error) {
	if s.store == nil {
		return nil, storage.ObjectStat{}, ErrStorageNotConfigured
	}
	key, err := storage.SafeJoinObjectPath("", key)
	if err != nil {
		return nil, storage.ObjectStat{}, ErrFileNotFound
	}
	chatID, ok := storage.ChatIDFromKey(key)
	if !ok {
		return nil, storage.ObjectStat{}, ErrFileNotFound
	}
	if err := requireParticipant(ctx, s.chatRepo, chatID, userID); err != nil {
		return nil, storage.ObjectStat{}, err
	}

	body, stat, err := s.store.GetObject(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, storage.ObjectStat{}, ErrFileNotFound
		}
		return nil, storage.ObjectStat{}, fmt.Errorf("get object: %w", err)
	}
	return body, stat, nil
}
