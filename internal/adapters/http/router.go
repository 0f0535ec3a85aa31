package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/Engine/internal/adapters/status"
	"github.com/dkeye/Engine/internal/config"
	"github.com/dkeye/Engine/internal/connector"
	"github.com/dkeye/Engine/internal/domain"
	"github.com/dkeye/Engine/internal/engine"
	"github.com/dkeye/Engine/internal/host"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// engineControl is the part of the engine handle the API drives.
type engineControl interface {
	Status() domain.EngineStatus
	Pause() error
	Resume() error
	Step() error
	SetInterval(time.Duration) error
}

type API struct {
	Connector *connector.ServiceConnector
	Host      *host.Host
	Gatherer  prometheus.Gatherer
	Limiter   *CommandRateLimiter
}

type ConnectorInfo struct {
	ID     string            `json:"id"`
	Worker domain.WorkerName `json:"worker"`
	Bound  bool              `json:"bound"`
}

// Snapshot is what the status stream and GET /api/status return.
type Snapshot struct {
	Type      string               `json:"type"`
	Connector ConnectorInfo        `json:"connector"`
	Engine    *domain.EngineStatus `json:"engine,omitempty"`
}

// ClientTokenMiddleware issues the ct cookie. Until a client sends it back, its
// commands are keyed by IP address.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		key := token
		if token == "" {
			token = uuid.NewString()
			key = "ip:" + c.ClientIP()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Set("client_key", key)
		c.Next()
	}
}

func commandLimit(rl *CommandRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost && !rl.Allow(c.GetString("client_key")) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many commands"})
			return
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, a *API) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(ClientTokenMiddleware())

	gatherer := a.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.Use(commandLimit(a.Limiter))

	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.snapshot())
	})

	api.GET("/connector", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.connectorInfo())
	})
	api.POST("/connector/start", func(c *gin.Context) {
		a.Connector.Start(a.Host)
		c.JSON(http.StatusAccepted, a.connectorInfo())
	})
	api.POST("/connector/stop", func(c *gin.Context) {
		a.Connector.Stop(a.Host)
		c.JSON(http.StatusOK, a.connectorInfo())
	})
	api.POST("/connector/visibility", a.handleVisibility)

	api.GET("/engine", func(c *gin.Context) {
		ctl, ok := a.control(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, ctl.Status())
	})
	api.POST("/engine/pause", a.engineCommand(engineControl.Pause))
	api.POST("/engine/resume", a.engineCommand(engineControl.Resume))
	api.POST("/engine/step", a.engineCommand(engineControl.Step))
	api.POST("/engine/interval", a.handleInterval)

	api.GET("/workers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"workers": a.Host.Workers()})
	})
	api.POST("/workers/:name/start", a.workerCommand(a.Host.StartWorker))
	api.POST("/workers/:name/stop", a.workerCommand(a.Host.StopWorker))

	ws := status.NewStatusWSController(func() any { return a.snapshot() }, cfg.StatusPeriod, cfg.ReadLimit)
	api.GET("/ws/status", func(c *gin.Context) {
		ws.HandleStatus(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("worker", string(a.Connector.Worker())).Msg("router setup")
	return r
}

func (a *API) connectorInfo() ConnectorInfo {
	return ConnectorInfo{
		ID:     a.Connector.ID(),
		Worker: a.Connector.Worker(),
		Bound:  a.Connector.Bound(),
	}
}

func (a *API) snapshot() Snapshot {
	s := Snapshot{Type: "status", Connector: a.connectorInfo()}
	if h, ok := a.Connector.Control(); ok {
		if ctl, ok := h.(engineControl); ok {
			st := ctl.Status()
			s.Engine = &st
		}
	}
	return s
}

// control resolves the current engine handle or writes 503.
func (a *API) control(c *gin.Context) (engineControl, bool) {
	h, ok := a.Connector.Control()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine not connected"})
		return nil, false
	}
	ctl, ok := h.(engineControl)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "worker has no engine control"})
		return nil, false
	}
	return ctl, true
}

func (a *API) engineCommand(fn func(engineControl) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctl, ok := a.control(c)
		if !ok {
			return
		}
		if err := fn(ctl); err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, ctl.Status())
	}
}

func (a *API) handleInterval(c *gin.Context) {
	var req struct {
		Interval string `json:"interval"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	d, err := time.ParseDuration(req.Interval)
	if err != nil || d <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interval"})
		return
	}
	ctl, ok := a.control(c)
	if !ok {
		return
	}
	if err := ctl.SetInterval(d); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctl.Status())
}

func (a *API) handleVisibility(c *gin.Context) {
	var req struct {
		Visibility string `json:"visibility"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	v, err := domain.ParseVisibility(req.Visibility)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.Host.SetVisibility(a.Connector.ID(), v); err != nil {
		if errors.Is(err, host.ErrNotBound) {
			c.JSON(http.StatusConflict, gin.H{"error": "connector not bound"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"visibility": v.String()})
}

func (a *API) workerCommand(fn func(domain.WorkerName) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		name, err := domain.ParseWorkerName(c.Param("name"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := fn(name); err != nil {
			switch {
			case errors.Is(err, host.ErrUnknownWorker):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case errors.Is(err, host.ErrNotRunning), errors.Is(err, host.ErrClosed):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				log.Error().Err(err).Str("module", "adapters.http").Str("worker", string(name)).Msg("worker command failed")
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"workers": a.Host.Workers()})
	}
}

func writeEngineError(c *gin.Context, err error) {
	if errors.Is(err, engine.ErrStopped) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
