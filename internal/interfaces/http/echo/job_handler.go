package echo

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	app "github.com/tariffio/tariff-import/internal/application/tariff"
)

// JobHandler serves import job status and control, plus stored source
// file downloads.
type JobHandler struct {
	status  app.GetJobStatus
	retry   app.ForceRetryJob
	cancel  app.CancelJob
	logFile app.GetLogFile
}

func NewJobHandler(status app.GetJobStatus, retry app.ForceRetryJob, cancel app.CancelJob, logFile app.GetLogFile) *JobHandler {
	return &JobHandler{
		status:  status,
		retry:   retry,
		cancel:  cancel,
		logFile: logFile,
	}
}

func (h *JobHandler) Status(c echo.Context) error {
	out, err := h.status.Execute(c.Request().Context(), app.GetJobStatusInput{
		JobID: c.Param("id"),
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidJobID) {
			return errJSON(c, http.StatusBadRequest, "invalid_job_id", "id must be a valid UUID")
		}
		if errors.Is(err, app.ErrJobNotFound) {
			return errJSON(c, http.StatusNotFound, "not_found", "import job not found")
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to get job status")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *JobHandler) Retry(c echo.Context) error {
	out, err := h.retry.Execute(c.Request().Context(), app.ForceRetryJobInput{
		JobID: c.Param("id"),
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidJobID) {
			return errJSON(c, http.StatusBadRequest, "invalid_job_id", "id must be a valid UUID")
		}
		if errors.Is(err, app.ErrJobNotFound) {
			return errJSON(c, http.StatusNotFound, "not_found", "import job not found")
		}
		if errors.Is(err, app.ErrJobNotRetryable) {
			return errJSON(c, http.StatusConflict, "not_retryable", "job is not in a retryable state")
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to retry job")
	}
	return c.JSON(http.StatusAccepted, apiResponse{Data: out})
}

func (h *JobHandler) Cancel(c echo.Context) error {
	out, err := h.cancel.Execute(c.Request().Context(), app.CancelJobInput{
		JobID: c.Param("id"),
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidJobID) {
			return errJSON(c, http.StatusBadRequest, "invalid_job_id", "id must be a valid UUID")
		}
		if errors.Is(err, app.ErrJobNotFound) {
			return errJSON(c, http.StatusNotFound, "not_found", "import job not found")
		}
		if errors.Is(err, app.ErrJobNotCancelable) {
			return errJSON(c, http.StatusConflict, "not_cancelable", "job is not in a cancelable state")
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to cancel job")
	}
	return c.JSON(http.StatusAccepted, apiResponse{Data: out})
}

// LogFile streams the source file stored with an import log record as
// a download.
func (h *JobHandler) LogFile(c echo.Context) error {
	out, err := h.logFile.Execute(c.Request().Context(), app.GetLogFileInput{
		LogID: c.Param("id"),
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidLogID) {
			return errJSON(c, http.StatusBadRequest, "invalid_log_id", "id must be a valid UUID")
		}
		if errors.Is(err, app.ErrLogNotFound) {
			return errJSON(c, http.StatusNotFound, "not_found", "no stored file for this import log")
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to read stored import file")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", out.FileName))
	return c.Blob(http.StatusOK, "application/octet-stream", out.Data)
}
