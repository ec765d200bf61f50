package validation

import (
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mebelplace/mebelplace-backend/internal/apperr"
	"github.com/mebelplace/mebelplace-backend/internal/models"
)

const (
	DefaultMaxMessageLength = 4000
	MaxFileNameLength       = 255
	MaxIDListLength         = 200
)

var (
	ErrEmptyContent    = apperr.Validation("empty_content", "Message content is required")
	ErrContentTooLong  = apperr.Validation("content_too_long", "Message content is too long")
	ErrUnknownType     = apperr.Validation("unknown_message_type", "Unknown message type")
	ErrInvalidIDList   = apperr.Validation("invalid_ids", "ids must be a comma separated list of user ids")
	ErrTooManyIDs      = apperr.Validation("too_many_ids", "Too many ids requested")
	ErrInvalidFileName = apperr.Validation("invalid_file_name", "Invalid file name")
)

// TrimAndLimit trims whitespace and cuts s to at most max runes.
func TrimAndLimit(s string, max int) string {
	s = strings.TrimSpace(s)
	if max > 0 && utf8.RuneCountInString(s) > max {
		return string([]rune(s)[:max])
	}
	return s
}

// MessageContent trims content and enforces the non-empty and length rules.
// Length counts characters, not bytes.
func MessageContent(content string, max int) (string, error) {
	if max <= 0 {
		max = DefaultMaxMessageLength
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > max {
		return "", ErrContentTooLong
	}
	return content, nil
}

// MessageType resolves the wire value; empty means text.
func MessageType(raw string) (models.MessageType, error) {
	if strings.TrimSpace(raw) == "" {
		return models.TextMessage, nil
	}
	t := models.MessageType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", ErrUnknownType
	}
	return t, nil
}

// FileName keeps only the base name of an uploaded file.
func FileName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(path.Base(name))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", ErrInvalidFileName
	}
	return TrimAndLimit(name, MaxFileNameLength), nil
}

// ParseIDList parses "1,2,3" into distinct positive ids.
func ParseIDList(raw string) ([]uint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidIDList
	}
	parts := strings.Split(raw, ",")
	if len(parts) > MaxIDListLength {
		return nil, ErrTooManyIDs
	}
	seen := make(map[uint]struct{}, len(parts))
	out := make([]uint, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil || id == 0 {
			return nil, ErrInvalidIDList
		}
		if _, dup := seen[uint(id)]; dup {
			continue
		}
		seen[uint(id)] = struct{}{}
		out = append(out, uint(id))
	}
	return out, nil
}
