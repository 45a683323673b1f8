package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/finsite/stock-backtest-engine/internal/api/domain"
	"github.com/finsite/stock-backtest-engine/internal/api/dto"
	"github.com/finsite/stock-backtest-engine/internal/processor"
	"github.com/finsite/stock-backtest-engine/internal/storage"
	"github.com/gin-gonic/gin"
)

// RunBacktest handles POST /api/v1/backtests
// Validates and runs a backtest synchronously and returns its result
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	h.logger.Info("RunBacktest called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	// 1. Validate request body
	validated, ok := h.bindAndValidate(c)
	if !ok {
		return
	}

	// 2. Run the backtest
	result := h.processor.RunBacktestJob(validated)

	// 3. Store and cache; the caller gets the result either way
	ctx := c.Request.Context()
	if err := h.store.SaveResult(ctx, result); err != nil {
		h.logger.Warn("Failed to save result",
			slog.String("job_id", result.JobID()),
			slog.String("error", err.Error()),
		)
	}
	h.cacheResult(c, result)

	c.JSON(http.StatusOK, result)
}

// EnqueueBacktest handles POST /api/v1/backtests/enqueue
// Validates a job message and publishes it for the worker service
func (h *BacktestHandler) EnqueueBacktest(c *gin.Context) {
	h.logger.Info("EnqueueBacktest called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	validated, ok := h.bindAndValidate(c)
	if !ok {
		return
	}

	body, err := json.Marshal(validated)
	if err != nil {
		h.logger.Error("Failed to marshal job message", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to encode job message"})
		return
	}

	jobID := processor.Message(validated).JobID()
	if err := h.publisher.PublishJob(c.Request.Context(), body); err != nil {
		h.logger.Error("Failed to enqueue backtest",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "Failed to enqueue backtest"})
		return
	}

	h.logger.Info("Backtest enqueued", slog.String("job_id", jobID))

	c.JSON(http.StatusAccepted, dto.EnqueueBacktestResponse{
		JobID:  jobID,
		Status: domain.StatusQueued,
	})
}

// GetBacktest handles GET /api/v1/backtests/:job_id
// Serves the result from cache, falling back to the database
func (h *BacktestHandler) GetBacktest(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "job_id is required"})
		return
	}

	h.logger.Info("GetBacktest called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("job_id", jobID),
	)

	ctx := c.Request.Context()

	// 1. Try the cache
	if h.cache != nil {
		cached, err := h.cache.Get(ctx, jobID)
		if err != nil {
			h.logger.Warn("Failed to read cached result",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
		if cached != nil {
			h.logger.Debug("Cache hit", slog.String("job_id", jobID))
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	// 2. Query the database
	row, err := h.store.GetResult(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrResultNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Backtest result not found"})
			return
		}
		h.logger.Error("Failed to get result", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get backtest result"})
		return
	}

	// 3. Warm the cache for the next read
	result := row.ToResult()
	h.cacheResult(c, result)

	c.JSON(http.StatusOK, result)
}

// ListBacktests handles GET /api/v1/backtests
// Lists stored results with optional filtering and keyset pagination
func (h *BacktestHandler) ListBacktests(c *gin.Context) {
	h.logger.Info("ListBacktests called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
	)

	// 1. Parse query parameters
	var req dto.ListBacktestsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	// 2. Clamp page size
	if req.PageSize <= 0 {
		req.PageSize = domain.DefaultPageSize
	}
	if req.PageSize > domain.MaxPageSize {
		req.PageSize = domain.MaxPageSize
	}

	// 3. Decode cursor
	cursor, err := DecodeResultCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}

	// 4. Query results
	rows, err := h.store.ListResults(c.Request.Context(), storage.ResultFilter{
		Strategy: req.Strategy,
		Symbol:   req.Symbol,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list results", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list backtest results"})
		return
	}

	// 5. Prepare response with next cursor if more results exist
	hasMore := len(rows) > req.PageSize
	if hasMore {
		rows = rows[:req.PageSize]
	}

	backtests := make([]dto.BacktestDTO, len(rows))
	for i, row := range rows {
		backtests[i] = dto.BacktestDTO{
			JobID:     row.JobID,
			Strategy:  row.Strategy,
			Symbol:    row.Symbol,
			Status:    row.Status,
			Metrics:   row.Metrics,
			CreatedAt: row.CreatedAt.Format(time.RFC3339),
			UpdatedAt: row.UpdatedAt.Format(time.RFC3339),
		}
	}

	var nextCursor string
	if hasMore {
		last := rows[len(rows)-1]
		nextCursor = EncodeResultCursor(&storage.ResultCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListBacktestsResponse{
		Backtests:  backtests,
		NextCursor: nextCursor,
	})
}

// DeleteBacktest handles DELETE /api/v1/backtests/:job_id
// Permanently deletes a stored result and evicts it from the cache
func (h *BacktestHandler) DeleteBacktest(c *gin.Context) {
	jobID := c.Param("job_id")

	h.logger.Info("DeleteBacktest called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("job_id", jobID),
	)

	ctx := c.Request.Context()
	if err := h.store.DeleteResult(ctx, jobID); err != nil {
		if errors.Is(err, storage.ErrResultNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Backtest result not found"})
			return
		}
		h.logger.Error("Failed to delete result", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to delete backtest result"})
		return
	}

	if h.cache != nil {
		if err := h.cache.Delete(ctx, jobID); err != nil {
			h.logger.Warn("Failed to evict cached result",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}

	c.Status(http.StatusNoContent)
}

// bindAndValidate decodes the request body as a job message and runs the
// schema check. It writes the 400 response itself and reports false on
// failure.
func (h *BacktestHandler) bindAndValidate(c *gin.Context) (processor.ValidatedMessage, bool) {
	var msg processor.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Request body must be a JSON object"})
		return nil, false
	}

	validated, err := h.processor.ValidateInputMessage(msg)
	if err != nil {
		resp := dto.ErrorResponse{Error: "Invalid message format"}
		var formatErr *processor.InvalidFormatError
		if errors.As(err, &formatErr) {
			resp.Fields = formatErr.Fields
		}
		c.JSON(http.StatusBadRequest, resp)
		return nil, false
	}

	return validated, true
}

func (h *BacktestHandler) cacheResult(c *gin.Context, result processor.Result) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(c.Request.Context(), result); err != nil {
		h.logger.Warn("Failed to cache result",
			slog.String("job_id", result.JobID()),
			slog.String("error", err.Error()),
		)
	}
}
