package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/finsite/stock-backtest-engine/internal/api/dto"
	"github.com/finsite/stock-backtest-engine/internal/processor"
	"github.com/finsite/stock-backtest-engine/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	saved     []processor.Result
	rows      map[string]*storage.BacktestResult
	listRows  []storage.BacktestResult
	lastQuery storage.ResultFilter
	saveErr   error
	getErr    error
	listErr   error
	deleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]*storage.BacktestResult{}}
}

func (s *fakeStore) SaveResult(_ context.Context, result processor.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, result)
	return nil
}

func (s *fakeStore) GetResult(_ context.Context, jobID string) (*storage.BacktestResult, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	row, ok := s.rows[jobID]
	if !ok {
		return nil, storage.ErrResultNotFound
	}
	return row, nil
}

func (s *fakeStore) ListResults(_ context.Context, filter storage.ResultFilter) ([]storage.BacktestResult, error) {
	s.lastQuery = filter
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.listRows, nil
}

func (s *fakeStore) DeleteResult(_ context.Context, jobID string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.rows[jobID]; !ok {
		return storage.ErrResultNotFound
	}
	delete(s.rows, jobID)
	return nil
}

type fakeCache struct {
	entries map[string]processor.Result
	getErr  error
	setErr  error
	deleted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]processor.Result{}}
}

func (c *fakeCache) Get(_ context.Context, jobID string) (processor.Result, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.entries[jobID], nil
}

func (c *fakeCache) Set(_ context.Context, result processor.Result) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[result.JobID()] = result
	return nil
}

func (c *fakeCache) Delete(_ context.Context, jobID string) error {
	c.deleted = append(c.deleted, jobID)
	delete(c.entries, jobID)
	return nil
}

type fakePublisher struct {
	bodies [][]byte
	err    error
}

func (p *fakePublisher) PublishJob(_ context.Context, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, body)
	return nil
}

type testEnv struct {
	store     *fakeStore
	cache     *fakeCache
	publisher *fakePublisher
	engine    *gin.Engine
}

func newTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		store:     newFakeStore(),
		cache:     newFakeCache(),
		publisher: &fakePublisher{},
	}

	h := NewBacktestHandler(&Dependencies{
		Logger:    logger,
		Processor: processor.New(logger, nil),
		Store:     env.store,
		Cache:     env.cache,
		Publisher: env.publisher,
	})

	r := gin.New()
	r.POST("/backtests", h.RunBacktest)
	r.POST("/backtests/enqueue", h.EnqueueBacktest)
	r.GET("/backtests", h.ListBacktests)
	r.GET("/backtests/:job_id", h.GetBacktest)
	r.DELETE("/backtests/:job_id", h.DeleteBacktest)
	env.engine = r

	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRunBacktest(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantFields []string
		wantSaved  int
	}{
		{
			name:       "valid message",
			body:       `{"job_id":"j1","strategy":"sma","symbol":"AAPL"}`,
			wantStatus: http.StatusOK,
			wantSaved:  1,
		},
		{
			name:       "missing symbol",
			body:       `{"job_id":"j1","strategy":"sma"}`,
			wantStatus: http.StatusBadRequest,
			wantFields: []string{"symbol"},
		},
		{
			name:       "wrong field type",
			body:       `{"job_id":42,"strategy":"sma","symbol":"AAPL"}`,
			wantStatus: http.StatusBadRequest,
			wantFields: []string{"job_id"},
		},
		{
			name:       "array body",
			body:       `["j1"]`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       `{"job_id":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()

			w := env.do(http.MethodPost, "/backtests", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Len(t, env.store.saved, tt.wantSaved)

			body := decodeBody(t, w)
			if tt.wantStatus != http.StatusOK {
				assert.Contains(t, body, "error")
				if len(tt.wantFields) > 0 {
					assert.Equal(t, "Invalid message format", body["error"])
					fields, ok := body["fields"].(map[string]any)
					require.True(t, ok)
					for _, f := range tt.wantFields {
						assert.Contains(t, fields, f)
					}
				}
			}
		})
	}
}

func TestRunBacktest_Result(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodPost, "/backtests", `{"job_id":"j1","strategy":"sma","symbol":"AAPL","params":{"window":20}}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, map[string]any{
		"job_id":   "j1",
		"strategy": "sma",
		"symbol":   "AAPL",
		"params":   map[string]any{"window": float64(20)},
		"status":   "completed",
		"metrics": map[string]any{
			"return_pct":   12.4,
			"sharpe_ratio": 1.7,
			"max_drawdown": -4.8,
		},
	}, decodeBody(t, w))

	assert.Contains(t, env.cache.entries, "j1")
}

func TestRunBacktest_StoreFailureStillReturnsResult(t *testing.T) {
	env := newTestEnv()
	env.store.saveErr = errors.New("database unavailable")

	w := env.do(http.MethodPost, "/backtests", `{"job_id":"j1","strategy":"sma","symbol":"AAPL"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", decodeBody(t, w)["status"])
}

func TestEnqueueBacktest(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		publishErr    error
		wantStatus    int
		wantPublished int
	}{
		{
			name:          "valid message is queued",
			body:          `{"job_id":"j1","strategy":"sma","symbol":"AAPL"}`,
			wantStatus:    http.StatusAccepted,
			wantPublished: 1,
		},
		{
			name:       "invalid message is rejected",
			body:       `{"strategy":"sma"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "publish failure",
			body:       `{"job_id":"j1","strategy":"sma","symbol":"AAPL"}`,
			publishErr: errors.New("not connected to RabbitMQ"),
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.publisher.err = tt.publishErr

			w := env.do(http.MethodPost, "/backtests/enqueue", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Len(t, env.publisher.bodies, tt.wantPublished)

			if tt.wantStatus == http.StatusAccepted {
				var resp dto.EnqueueBacktestResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "j1", resp.JobID)
				assert.Equal(t, "queued", resp.Status)

				var published map[string]any
				require.NoError(t, json.Unmarshal(env.publisher.bodies[0], &published))
				assert.Equal(t, "AAPL", published["symbol"])
			}
		})
	}
}

func TestGetBacktest(t *testing.T) {
	stored := &storage.BacktestResult{
		JobID:    "db-job",
		Strategy: "sma",
		Symbol:   "AAPL",
		Status:   "completed",
		Result:   storage.JSONMap{"job_id": "db-job", "strategy": "sma", "symbol": "AAPL", "status": "completed"},
	}

	t.Run("cache hit", func(t *testing.T) {
		env := newTestEnv()
		env.cache.entries["cached-job"] = processor.Result{"job_id": "cached-job", "status": "completed"}

		w := env.do(http.MethodGet, "/backtests/cached-job", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "cached-job", decodeBody(t, w)["job_id"])
	})

	t.Run("cache miss falls back to database and warms cache", func(t *testing.T) {
		env := newTestEnv()
		env.store.rows["db-job"] = stored

		w := env.do(http.MethodGet, "/backtests/db-job", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "sma", decodeBody(t, w)["strategy"])
		assert.Contains(t, env.cache.entries, "db-job")
	})

	t.Run("cache error falls back to database", func(t *testing.T) {
		env := newTestEnv()
		env.cache.getErr = errors.New("redis down")
		env.store.rows["db-job"] = stored

		w := env.do(http.MethodGet, "/backtests/db-job", "")

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		env := newTestEnv()

		w := env.do(http.MethodGet, "/backtests/missing", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("database error", func(t *testing.T) {
		env := newTestEnv()
		env.store.getErr = errors.New("connection refused")

		w := env.do(http.MethodGet, "/backtests/db-job", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestListBacktests(t *testing.T) {
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := func(n int) []storage.BacktestResult {
		out := make([]storage.BacktestResult, n)
		for i := range out {
			out[i] = storage.BacktestResult{
				JobID:     string(rune('a' + i)),
				Strategy:  "sma",
				Symbol:    "AAPL",
				Status:    "completed",
				Metrics:   storage.JSONMap{"return_pct": 12.4},
				CreatedAt: base.Add(-time.Duration(i) * time.Minute),
				UpdatedAt: base,
			}
		}
		return out
	}

	tests := []struct {
		name         string
		query        string
		rows         []storage.BacktestResult
		wantStatus   int
		wantPageSize int
		wantCount    int
		wantCursor   bool
	}{
		{
			name:         "default page size",
			query:        "",
			rows:         rows(3),
			wantStatus:   http.StatusOK,
			wantPageSize: 20,
			wantCount:    3,
		},
		{
			name:         "more rows than page size yields cursor",
			query:        "?page_size=2",
			rows:         rows(3),
			wantStatus:   http.StatusOK,
			wantPageSize: 2,
			wantCount:    2,
			wantCursor:   true,
		},
		{
			name:         "page size is capped",
			query:        "?page_size=1000",
			rows:         rows(1),
			wantStatus:   http.StatusOK,
			wantPageSize: 100,
			wantCount:    1,
		},
		{
			name:       "invalid cursor",
			query:      "?cursor=!!!",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "non-numeric page size",
			query:      "?page_size=abc",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.store.listRows = tt.rows

			w := env.do(http.MethodGet, "/backtests"+tt.query, "")

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp dto.ListBacktestsResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantPageSize, env.store.lastQuery.PageSize)
			assert.Len(t, resp.Backtests, tt.wantCount)
			assert.Equal(t, tt.wantCursor, resp.NextCursor != "")

			if tt.wantCursor {
				cursor, err := DecodeResultCursor(resp.NextCursor)
				require.NoError(t, err)
				last := resp.Backtests[len(resp.Backtests)-1]
				assert.Equal(t, last.JobID, cursor.JobID)
			}
		})
	}
}

func TestListBacktests_PassesFilters(t *testing.T) {
	env := newTestEnv()
	cursor := EncodeResultCursor(&storage.ResultCursor{
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		JobID:     "j9",
	})

	w := env.do(http.MethodGet, "/backtests?strategy=sma&symbol=MSFT&cursor="+cursor, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sma", env.store.lastQuery.Strategy)
	assert.Equal(t, "MSFT", env.store.lastQuery.Symbol)
	require.NotNil(t, env.store.lastQuery.Cursor)
	assert.Equal(t, "j9", env.store.lastQuery.Cursor.JobID)
}

func TestDeleteBacktest(t *testing.T) {
	tests := []struct {
		name       string
		seed       bool
		deleteErr  error
		wantStatus int
		wantEvict  bool
	}{
		{name: "existing result", seed: true, wantStatus: http.StatusNoContent, wantEvict: true},
		{name: "missing result", wantStatus: http.StatusNotFound},
		{name: "database error", deleteErr: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.store.deleteErr = tt.deleteErr
			if tt.seed {
				env.store.rows["j1"] = &storage.BacktestResult{JobID: "j1"}
				env.cache.entries["j1"] = processor.Result{"job_id": "j1"}
			}

			w := env.do(http.MethodDelete, "/backtests/j1", "")

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantEvict {
				assert.Equal(t, []string{"j1"}, env.cache.deleted)
				assert.NotContains(t, env.cache.entries, "j1")
			} else {
				assert.Empty(t, env.cache.deleted)
			}
		})
	}
}
