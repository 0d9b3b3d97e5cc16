package echo

import (
	"net/http"

	e "github.com/labstack/echo/v4"
)

func RegisterRoutes(server *e.Echo, providers *ProviderHandler, jobs *JobHandler) {
	server.GET("/healthz", func(c e.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// The OAuth redirect target lives outside the API group so the
	// registered redirect URL stays short.
	server.GET("/gdrive/oauth/callback", providers.DriveCallback)

	api := server.Group("/api/v1")

	api.POST("/providers", providers.Create)
	api.GET("/providers", providers.List)
	api.GET("/providers/:id", providers.Get)
	api.PUT("/providers/:id", providers.Update)
	api.DELETE("/providers/:id", providers.Delete)
	api.POST("/providers/:id/test-connection", providers.TestConnection)
	api.GET("/providers/:id/files", providers.Files)
	api.POST("/providers/:id/process", providers.Process)
	api.GET("/providers/:id/logs", providers.Logs)
	api.GET("/providers/:id/gdrive/authorize", providers.DriveAuthorize)
	api.GET("/providers/:id/gdrive/folders", providers.DriveFolders)
	api.DELETE("/providers/:id/gdrive", providers.DriveDisconnect)

	api.GET("/jobs/:id", jobs.Status)
	api.POST("/jobs/:id/retry", jobs.Retry)
	api.POST("/jobs/:id/cancel", jobs.Cancel)
	api.GET("/logs/:id/file", jobs.LogFile)
}
