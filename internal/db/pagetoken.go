package db

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/contract-processor/internal/types"
)

// Log listing limits
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// pageCursor marks the last row of a page in (created_at DESC, id DESC) order.
type pageCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// encodePageToken renders a cursor as an opaque token.
func encodePageToken(c pageCursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodePageToken parses a token produced by encodePageToken.
func decodePageToken(token string) (pageCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return pageCursor{}, fmt.Errorf("%w: %v", types.ErrInvalidPageToken, err)
	}
	createdAt, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return pageCursor{}, fmt.Errorf("%w: missing separator", types.ErrInvalidPageToken)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return pageCursor{}, fmt.Errorf("%w: %v", types.ErrInvalidPageToken, err)
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return pageCursor{}, fmt.Errorf("%w: %v", types.ErrInvalidPageToken, err)
	}
	return pageCursor{CreatedAt: ts, ID: parsedID}, nil
}

// clampPageSize applies the default and maximum page sizes.
func clampPageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
