package dto

type ListBacktestsRequest struct {
	Strategy string `form:"strategy"`
	Symbol   string `form:"symbol"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListBacktestsResponse struct {
	Backtests  []BacktestDTO `json:"backtests"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type BacktestDTO struct {
	JobID     string         `json:"job_id"`
	Strategy  string         `json:"strategy"`
	Symbol    string         `json:"symbol"`
	Status    string         `json:"status"`
	Metrics   map[string]any `json:"metrics"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

type EnqueueBacktestResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
