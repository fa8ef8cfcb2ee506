package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/batch-scheduler/internal/api/dto"
	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/cuongbtq/batch-scheduler/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetExecution handles GET /api/v1/executions/:execution_id
func (h *JobHandler) GetExecution(c *gin.Context) {
	executionID := c.Param("execution_id")
	if _, err := uuid.Parse(executionID); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "execution_id must be a valid UUID"})
		return
	}

	execution, err := h.store.GetExecution(c.Request.Context(), executionID)
	if errors.Is(err, batch.ErrExecutionNotFound) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Execution not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get execution", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get execution"})
		return
	}

	c.JSON(http.StatusOK, dto.FromExecution(execution))
}

// ListExecutions handles GET /api/v1/executions.
// Executions are listed newest first with cursor pagination.
func (h *JobHandler) ListExecutions(c *gin.Context) {
	var req dto.ListExecutionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := storage.DecodeCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}

	executions, err := h.store.ListExecutions(c.Request.Context(), storage.ExecutionFilter{
		JobName:  req.JobName,
		Status:   batch.ExecutionStatus(req.Status),
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list executions", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list executions"})
		return
	}

	hasMore := len(executions) > req.PageSize
	if hasMore {
		executions = executions[:req.PageSize]
	}

	resp := dto.ListExecutionsResponse{Executions: make([]dto.ExecutionDTO, len(executions))}
	for i, e := range executions {
		resp.Executions[i] = dto.FromExecution(e)
	}

	if hasMore {
		last := executions[len(executions)-1]
		next := storage.Cursor{StartTime: last.StartTime, ExecutionID: last.ID}
		resp.NextCursor = next.Encode()
	}

	c.JSON(http.StatusOK, resp)
}
