package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/batch-scheduler/internal/api/dto"
	"github.com/cuongbtq/batch-scheduler/internal/batch"
	"github.com/gin-gonic/gin"
)

// ListJobs handles GET /api/v1/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ListJobsResponse{Jobs: h.registry.Names()})
}

// LaunchJob handles POST /api/v1/jobs/:job_name/executions.
// The launch is synchronous: the response carries the finished execution.
func (h *JobHandler) LaunchJob(c *gin.Context) {
	jobName := c.Param("job_name")

	var req dto.LaunchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Error("Invalid request body", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
			return
		}
	}

	params, err := launchParameters(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	outcome, err := h.launcher.Run(c.Request.Context(), jobName, params)
	if err != nil {
		h.respondLaunchError(c, jobName, err)
		return
	}

	resp := dto.LaunchResponse{JobName: jobName}
	switch {
	case outcome.Rejected():
		resp.Status = dto.StatusRejected
		resp.Reason = outcome.Rejection.String()
		resp.Error = outcome.Err.Error()
		c.JSON(http.StatusConflict, resp)
	case outcome.Succeeded():
		execution := dto.FromExecution(outcome.Execution)
		resp.Status = execution.Status
		resp.Execution = &execution
		c.JSON(http.StatusCreated, resp)
	default:
		execution := dto.FromExecution(outcome.Execution)
		resp.Status = execution.Status
		resp.Error = execution.ExitMessage
		resp.Execution = &execution
		c.JSON(http.StatusOK, resp)
	}
}

func launchParameters(req dto.LaunchRequest) (batch.JobParameters, error) {
	switch {
	case req.Parameters != nil && req.Params != nil:
		return batch.JobParameters{}, errors.New("only one of parameters and params may be set")
	case req.Params != nil:
		return batch.ParseParameters(req.Params)
	case req.Parameters != nil:
		return batch.ParametersFromMap(req.Parameters)
	default:
		return batch.NewParameters().Build(), nil
	}
}

func (h *JobHandler) respondLaunchError(c *gin.Context, jobName string, err error) {
	switch batch.KindOf(err) {
	case batch.KindUnknownJob:
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	case batch.KindInvalidParameters:
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error("Failed to launch job",
			slog.String("job_name", jobName),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to launch job"})
	}
}

// GetLatestExecution handles GET /api/v1/jobs/:job_name/executions/latest.
// The instance is selected with repeated ?param=name(type)=value query values.
func (h *JobHandler) GetLatestExecution(c *gin.Context) {
	jobName := c.Param("job_name")
	if _, ok := h.registry.Get(jobName); !ok {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: batch.NewError(batch.KindUnknownJob, jobName, nil).Error()})
		return
	}

	params, err := batch.ParseParameters(c.QueryArray("param"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	execution, err := h.store.LatestExecution(c.Request.Context(), jobName, params)
	if errors.Is(err, batch.ErrInstanceNotFound) || errors.Is(err, batch.ErrExecutionNotFound) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get latest execution", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get latest execution"})
		return
	}

	c.JSON(http.StatusOK, dto.FromExecution(execution))
}
