package processor

// Message is a raw backtest job message as received from a caller
type Message map[string]any

// ValidatedMessage is a job message that has passed schema validation
type ValidatedMessage map[string]any

// Result is the outcome of a backtest job: the input message merged with
// the job status and metrics
type Result map[string]any

// Message keys read and written by the job runner
const (
	KeyJobID    = "job_id"
	KeyStrategy = "strategy"
	KeySymbol   = "symbol"
	KeyStatus   = "status"
	KeyMetrics  = "metrics"
)

// Defaults used when a validated message lacks an identifying field
const (
	DefaultJobID    = "unknown"
	DefaultStrategy = "unspecified"
	DefaultSymbol   = "UNKNOWN"
)

// StatusCompleted is the only status the runner produces
const StatusCompleted = "completed"

// Placeholder metrics reported for every job
const (
	ReturnPct   = 12.4
	SharpeRatio = 1.7
	MaxDrawdown = -4.8
)

// JobID returns the job_id of the result as a string, or DefaultJobID
func (r Result) JobID() string {
	return stringField(map[string]any(r), KeyJobID, DefaultJobID)
}

// Strategy returns the strategy of the result as a string
func (r Result) Strategy() string {
	return stringField(map[string]any(r), KeyStrategy, DefaultStrategy)
}

// Symbol returns the symbol of the result as a string
func (r Result) Symbol() string {
	return stringField(map[string]any(r), KeySymbol, DefaultSymbol)
}

// Status returns the status of the result
func (r Result) Status() string {
	return stringField(map[string]any(r), KeyStatus, "")
}

// Metrics returns the metrics mapping of the result, or nil
func (r Result) Metrics() map[string]any {
	m, _ := r[KeyMetrics].(map[string]any)
	return m
}

// JobID returns the job_id of the message as a string, or "" when absent
func (m Message) JobID() string {
	return stringField(map[string]any(m), KeyJobID, "")
}

func stringField(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return fallback
}
