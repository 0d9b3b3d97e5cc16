package echo

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	app "github.com/tariffio/tariff-import/internal/application/tariff"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

func errJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, apiResponse{Error: &errorBody{
		Code:    code,
		Message: message,
	}})
}

// ProviderHandler serves provider administration plus the per-provider
// import entry points: preview, process, history and Drive authorization.
type ProviderHandler struct {
	admin   *app.ProviderAdmin
	preview app.PreviewRemoteFiles
	process app.CreateImportJob
	logs    app.ListImportLogs
	drive   *app.GDriveConnect
}

func NewProviderHandler(admin *app.ProviderAdmin, preview app.PreviewRemoteFiles, process app.CreateImportJob, logs app.ListImportLogs, drive *app.GDriveConnect) *ProviderHandler {
	return &ProviderHandler{
		admin:   admin,
		preview: preview,
		process: process,
		logs:    logs,
		drive:   drive,
	}
}

func (h *ProviderHandler) Create(c echo.Context) error {
	var params app.ProviderParams
	if err := c.Bind(&params); err != nil {
		return errJSON(c, http.StatusBadRequest, "bad_request", "invalid request body")
	}

	out, err := h.admin.Create(c.Request().Context(), params)
	if err != nil {
		if errors.Is(err, app.ErrInvalidProvider) {
			return errJSON(c, http.StatusBadRequest, "invalid_provider", err.Error())
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to create provider")
	}

	return c.JSON(http.StatusCreated, apiResponse{Data: out})
}

func (h *ProviderHandler) List(c echo.Context) error {
	out, err := h.admin.List(c.Request().Context())
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to list providers")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *ProviderHandler) Get(c echo.Context) error {
	out, err := h.admin.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, app.ErrInvalidProviderID) {
			return errJSON(c, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
		}
		if errors.Is(err, app.ErrProviderNotFound) {
			return errJSON(c, http.StatusNotFound, "not_found", "provider not found")
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to get provider")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *ProviderHandler) Update(c echo.Context) error {
	var params app.ProviderParams
	if err := c.Bind(&params); err != nil {
		return errJSON(c, http.StatusBadRequest, "bad_request", "invalid request body")
	}

	out, err := h.admin.Update(c.Request().Context(), c.Param("id"), params)
	if err != nil {
		if errors.Is(err, app.ErrInvalidProviderID) {
			return errJSON(c, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
		}
		if errors.Is(err, app.ErrProviderNotFound) {
			return errJSON(c, http.StatusNotFound, "not_found", "provider not found")
		}
		if errors.Is(err, app.ErrInvalidProvider) {
			return errJSON(c, http.StatusBadRequest, "invalid_provider", err.Error())
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to update provider")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *ProviderHandler) Delete(c echo.Context) error {
	if err := h.admin.Delete(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, app.ErrInvalidProviderID) {
			return errJSON(c, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
		}
		if errors.Is(err, app.ErrProviderNotFound) {
			return errJSON(c, http.StatusNotFound, "not_found", "provider not found")
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to delete provider")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ProviderHandler) TestConnection(c echo.Context) error {
	out, err := h.admin.TestConnection(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, app.ErrInvalidProviderID) {
			return errJSON(c, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
		}
		if errors.Is(err, app.ErrProviderNotFound) {
			return errJSON(c, http.StatusNotFound, "not_found", "provider not found")
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "connection test failed")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *ProviderHandler) Files(c echo.Context) error {
	out, err := h.preview.Execute(c.Request().Context(), app.PreviewRemoteFilesInput{
		ProviderID: c.Param("id"),
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidProviderID) {
			return errJSON(c, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
		}
		if errors.Is(err, app.ErrProviderNotFound) {
			return errJSON(c, http.StatusNotFound, "not_found", "provider not found")
		}
		if errors.Is(err, app.ErrListRemoteFiles) {
			return errJSON(c, http.StatusBadGateway, "remote_unavailable", "could not list files on the remote")
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to list remote files")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

type processRequest struct {
	Mode string `json:"mode"`
}

func (h *ProviderHandler) Process(c echo.Context) error {
	var req processRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "bad_request", "invalid request body")
	}

	out, err := h.process.Execute(c.Request().Context(), app.CreateImportJobInput{
		ProviderID: c.Param("id"),
		Mode:       req.Mode,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidProviderID) {
			return errJSON(c, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
		}
		if errors.Is(err, app.ErrProviderNotFound) {
			return errJSON(c, http.StatusNotFound, "not_found", "provider not found")
		}
		if errors.Is(err, app.ErrInvalidImportMode) {
			return errJSON(c, http.StatusBadRequest, "invalid_mode", "mode must be one of standard, full, delta, refresh_content")
		}
		if errors.Is(err, app.ErrProviderInactive) {
			return errJSON(c, http.StatusConflict, "provider_inactive", "provider is not active")
		}
		if errors.Is(err, app.ErrActiveJobExists) {
			return errJSON(c, http.StatusConflict, "active_job_exists", "an import job is already active for this provider")
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to enqueue import job")
	}

	return c.JSON(http.StatusAccepted, apiResponse{Data: out})
}

func (h *ProviderHandler) Logs(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	out, err := h.logs.Execute(c.Request().Context(), app.ListImportLogsInput{
		ProviderID: c.Param("id"),
		Limit:      limit,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidProviderID) {
			return errJSON(c, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
		}
		if errors.Is(err, app.ErrProviderNotFound) {
			return errJSON(c, http.StatusNotFound, "not_found", "provider not found")
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to list import logs")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *ProviderHandler) DriveAuthorize(c echo.Context) error {
	out, err := h.drive.AuthorizeURL(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, app.ErrInvalidProviderID) {
			return errJSON(c, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
		}
		if errors.Is(err, app.ErrProviderNotFound) {
			return errJSON(c, http.StatusNotFound, "not_found", "provider not found")
		}
		if errors.Is(err, app.ErrDriveNotConfigured) {
			return errJSON(c, http.StatusBadRequest, "drive_not_configured", "provider is missing google oauth client credentials")
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to start drive authorization")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

// DriveCallback is the OAuth redirect target. Google calls it with the
// code and the state issued by DriveAuthorize.
func (h *ProviderHandler) DriveCallback(c echo.Context) error {
	out, err := h.drive.HandleCallback(c.Request().Context(), c.QueryParam("code"), c.QueryParam("state"))
	if err != nil {
		if errors.Is(err, app.ErrDriveStateMismatch) {
			return errJSON(c, http.StatusBadRequest, "state_mismatch", "oauth state does not match a pending authorization")
		}
		if errors.Is(err, app.ErrDriveExchange) {
			return errJSON(c, http.StatusBadGateway, "exchange_failed", "failed to exchange the authorization code")
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to complete drive authorization")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *ProviderHandler) DriveFolders(c echo.Context) error {
	out, err := h.drive.Folders(c.Request().Context(), c.Param("id"), c.QueryParam("parent"))
	if err != nil {
		if errors.Is(err, app.ErrInvalidProviderID) {
			return errJSON(c, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
		}
		if errors.Is(err, app.ErrProviderNotFound) {
			return errJSON(c, http.StatusNotFound, "not_found", "provider not found")
		}
		if errors.Is(err, app.ErrFolderBrowse) {
			return errJSON(c, http.StatusBadRequest, "folder_browse_unsupported", "provider backend does not support folder browsing")
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to list drive folders")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *ProviderHandler) DriveDisconnect(c echo.Context) error {
	if err := h.drive.Disconnect(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, app.ErrInvalidProviderID) {
			return errJSON(c, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
		}
		if errors.Is(err, app.ErrProviderNotFound) {
			return errJSON(c, http.StatusNotFound, "not_found", "provider not found")
		}
		return errJSON(c, http.StatusInternalServerError, "internal_error", "failed to disconnect drive")
	}
	return c.NoContent(http.StatusNoContent)
}
