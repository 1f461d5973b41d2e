package handler

import (
	"github.com/labstack/echo/v4"

	"workbee/internal/usecase"
	"workbee/pkg/response"
)

type JobHandler struct {
	jobUseCase *usecase.JobUseCase
}

func NewJobHandler(jobUseCase *usecase.JobUseCase) *JobHandler {
	return &JobHandler{
		jobUseCase: jobUseCase,
	}
}

type jobReasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ListJobs returns jobs where the caller is customer or worker.
func (h *JobHandler) ListJobs(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	jobs, err := h.jobUseCase.ListForUser(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.List(c, jobs, len(jobs))
}

func (h *JobHandler) ListConversationJobs(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	jobs, err := h.jobUseCase.ListByConversation(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.List(c, jobs, len(jobs))
}

func (h *JobHandler) GetJob(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	job, err := h.jobUseCase.GetJobForUser(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, job)
}

func (h *JobHandler) ListLogs(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	logs, err := h.jobUseCase.ListLogs(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.List(c, logs, len(logs))
}

func (h *JobHandler) MarkCompleted(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	job, err := h.jobUseCase.MarkCompleted(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, job)
}

func (h *JobHandler) RaiseDispute(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req jobReasonRequest
	if err := bind(c, &req); err != nil {
		return response.Error(c, err)
	}

	job, err := h.jobUseCase.RaiseDispute(c.Request().Context(), c.Param("id"), userID, req.Reason)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, job)
}

func (h *JobHandler) Cancel(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	var req jobReasonRequest
	if err := bind(c, &req); err != nil {
		return response.Error(c, err)
	}

	job, err := h.jobUseCase.Cancel(c.Request().Context(), c.Param("id"), userID, req.Reason)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, job)
}
