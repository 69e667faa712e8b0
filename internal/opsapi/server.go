// Package opsapi serves health, metrics and read-only reports over HTTP.
package opsapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"

	"pricebot/internal/engagement"
	"pricebot/internal/metrics"
	"pricebot/internal/notifier/broadcast"
	"pricebot/internal/storage"
	logx "pricebot/pkg/logx"
)

// Reports is implemented by engagement.Tracker.
type Reports interface {
	Overview() storage.OverallStats
	CampaignReport(id int64) (engagement.CampaignReport, bool)
	Recent(n int) []engagement.CampaignReport
}

// JobStatuses is implemented by broadcast.Service.
type JobStatuses interface {
	Status(campaignID int64) (broadcast.JobStatus, bool)
	Jobs() []broadcast.JobStatus
}

type Deps struct {
	Reports Reports
	Jobs    JobStatuses
	Metrics *metrics.Metrics
	Log     logx.Logger
	// Ready reports whether the bot finished starting.
	Ready func() bool
	Pprof PprofConfig
}

type Server struct {
	e   *echo.Echo
	log logx.Logger
}

func New(d Deps) *Server {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echoMid.Recover(), requestLog(d.Log))

	e.GET("/healthz", func(c echo.Context) error {
		if d.Ready != nil && !d.Ready() {
			return c.String(http.StatusServiceUnavailable, "starting")
		}
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))

	api := e.Group("/api")
	api.GET("/stats", statsHandler(d.Reports))
	api.GET("/campaigns", listCampaignsHandler(d.Reports))
	api.GET("/campaigns/:id", campaignHandler(d.Reports, d.Jobs))
	api.GET("/jobs", jobsHandler(d.Jobs))

	mountPprof(e, d.Pprof, d.Log)

	return &Server{e: e, log: d.Log}
}

func (s *Server) Handler() http.Handler { return s.e }

// Start blocks until the server stops. A clean shutdown returns nil.
func (s *Server) Start(addr string) error {
	s.log.Info("ops api listening", logx.String("addr", addr))
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func requestLog(log logx.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			log.Debug("http request",
				logx.String("method", c.Request().Method),
				logx.String("path", c.Path()),
				logx.Int("status", c.Response().Status),
				logx.Duration("dur", time.Since(start)),
			)
			return nil
		}
	}
}

func statsHandler(r Reports) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, r.Overview())
	}
}

func listCampaignsHandler(r Reports) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 20
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		items := r.Recent(limit)
		return c.JSON(http.StatusOK, map[string]any{
			"count":   len(items),
			"results": items,
		})
	}
}

type campaignResponse struct {
	engagement.CampaignReport
	Job *broadcast.JobStatus `json:"job,omitempty"`
}

func campaignHandler(r Reports, jobs JobStatuses) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid campaign id"})
		}
		rep, ok := r.CampaignReport(id)
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "campaign not found"})
		}
		resp := campaignResponse{CampaignReport: rep}
		if jobs != nil {
			if st, ok := jobs.Status(id); ok {
				resp.Job = &st
			}
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func jobsHandler(jobs JobStatuses) echo.HandlerFunc {
	return func(c echo.Context) error {
		if jobs == nil {
			return c.JSON(http.StatusOK, []broadcast.JobStatus{})
		}
		return c.JSON(http.StatusOK, jobs.Jobs())
	}
}
