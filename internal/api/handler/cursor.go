package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/finsite/stock-backtest-engine/internal/api/domain"
	"github.com/finsite/stock-backtest-engine/internal/storage"
)

// DecodeResultCursor parses an opaque page cursor. An empty string means the
// first page and yields nil.
func DecodeResultCursor(cursorStr string) (*storage.ResultCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
	}

	// job IDs may contain the separator, so split once
	createdAtPart, jobID, ok := strings.Cut(string(decoded), "|")
	if !ok || jobID == "" {
		return nil, fmt.Errorf("%w: malformed cursor", domain.ErrInvalidCursor)
	}

	createdAt, err := strconv.ParseInt(createdAtPart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid created_at: %v", domain.ErrInvalidCursor, err)
	}

	return &storage.ResultCursor{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		JobID:     jobID,
	}, nil
}

// EncodeResultCursor renders the position after the given row
func EncodeResultCursor(cursor *storage.ResultCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.JobID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}
