package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hospitalops/shiftsolver/internal/metrics"
)

// NewRouter builds the Echo instance and registers every route of spec §6,
// mirroring the teacher's router.go middleware stack (Logger, Recover,
// permissive CORS) plus a Prometheus-backed request-duration middleware
// this spec's observability expansion (§10) adds.
func NewRouter(h *Handlers, reg *metrics.Registry) *echo.Echo {
	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	if reg != nil {
		e.Use(metricsMiddleware(reg))
		e.GET("/metrics", echo.WrapHandler(reg.Handler()))
	}

	e.GET("/api/health", h.Health)
	e.GET("/api/health/db", h.HealthDB)
	e.GET("/api/health/redis", h.HealthRedis)

	runs := e.Group("/api/schedule-runs")
	runs.POST("", h.CreateRun)
	runs.GET("/:id", h.GetRun)
	runs.GET("", h.ListRuns)

	catalog := e.Group("/api/catalog")
	catalog.POST("/seed", h.SeedCatalog)

	return e
}

func metricsMiddleware(reg *metrics.Registry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			reg.RecordHTTPRequest(c.Request().Method, c.Path(), c.Response().Status, time.Since(start).Seconds())
			return err
		}
	}
}
