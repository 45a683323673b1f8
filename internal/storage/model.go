package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finsite/stock-backtest-engine/internal/processor"
)

// BacktestResult is a stored backtest result row
type BacktestResult struct {
	JobID     string    `db:"job_id"`
	Strategy  string    `db:"strategy"`
	Symbol    string    `db:"symbol"`
	Status    string    `db:"status"`
	Metrics   JSONMap   `db:"metrics"`
	Result    JSONMap   `db:"result"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ToResult returns the full result mapping stored with the row
func (r *BacktestResult) ToResult() processor.Result {
	return processor.Result(r.Result)
}

// JSONMap is a JSONB column decoded into a map
type JSONMap map[string]any

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json column: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to unmarshal json column: %w", err)
	}
	*m = out
	return nil
}

// ResultFilter narrows ListResults
type ResultFilter struct {
	Strategy string
	Symbol   string
	PageSize int
	Cursor   *ResultCursor
}

// ResultCursor is a keyset pagination position
type ResultCursor struct {
	CreatedAt time.Time
	JobID     string
}
