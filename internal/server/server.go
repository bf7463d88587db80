// Package server exposes a running simulation over HTTP: read-only state
// endpoints, tick control, and a websocket stream of tick summaries.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gridsim/internal/model"
	"gridsim/internal/platform"
)

const (
	DefaultAddr     = ":8080"
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

type Config struct {
	Addr         string
	TickInterval time.Duration
}

type Server struct {
	cfg    Config
	sim    *platform.Simulation
	driver *platform.Driver
	hub    *hub
	log    logrus.FieldLogger
	engine *gin.Engine
}

func New(cfg Config, sim *platform.Simulation, log logrus.FieldLogger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "server")

	s := &Server{
		cfg: cfg,
		sim: sim,
		hub: newHub(log),
		log: log,
	}
	s.driver = platform.NewDriver(sim, cfg.TickInterval, platform.DriverHooks{
		OnTick: s.hub.publish,
		OnStop: func(reason platform.StopReason) {
			s.log.WithField("reason", string(reason)).Info("simulation loop stopped")
		},
	}, log)
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/state", s.state)
	router.GET("/agents/:id", s.agent)
	router.GET("/qtable", s.qtable)
	router.GET("/discoveries", s.discoveries)
	router.GET("/history", s.history)
	router.GET("/ws", s.stream)

	router.POST("/tick", s.tick)
	router.POST("/start", s.start)
	router.POST("/stop", s.stop)
	router.POST("/learner/reset", s.resetLearner)
	return router
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Driver() *platform.Driver {
	return s.driver
}

// Run serves until ctx is cancelled, then stops the tick loop and shuts the
// listener down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.engine}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Close stops the tick loop and disconnects stream subscribers.
func (s *Server) Close() {
	s.driver.Stop()
	s.hub.closeAll()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}

type stateResponse struct {
	model.TickSummary
	Running bool `json:"running"`
	Done    bool `json:"done"`
}

func (s *Server) state(c *gin.Context) {
	c.JSON(http.StatusOK, stateResponse{
		TickSummary: s.sim.Snapshot(),
		Running:     s.driver.Running(),
		Done:        s.sim.Done(),
	})
}

func (s *Server) agent(c *gin.Context) {
	state, err := s.sim.Agent(c.Param("id"))
	if err != nil {
		if errors.Is(err, platform.ErrUnknownAgent) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) qtable(c *gin.Context) {
	table := s.sim.QTable()
	if table == nil {
		table = []model.QValue{}
	}
	c.JSON(http.StatusOK, table)
}

func (s *Server) discoveries(c *gin.Context) {
	c.JSON(http.StatusOK, s.sim.Discoveries())
}

func (s *Server) history(c *gin.Context) {
	c.JSON(http.StatusOK, s.sim.History())
}

func (s *Server) tick(c *gin.Context) {
	if s.driver.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": platform.ErrDriverRunning.Error()})
		return
	}
	summary, err := s.sim.Tick(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.hub.publish(summary)
	c.JSON(http.StatusOK, summary)
}

func (s *Server) start(c *gin.Context) {
	if err := s.driver.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) stop(c *gin.Context) {
	s.driver.Stop()
	c.JSON(http.StatusOK, gin.H{"reason": string(s.driver.LastStopReason())})
}

func (s *Server) resetLearner(c *gin.Context) {
	if !s.sim.ResetLearner() {
		c.JSON(http.StatusNotFound, gin.H{"error": "learner disabled"})
		return
	}
	c.JSON(http.StatusOK, s.sim.Snapshot().Learner)
}

// stream sends the current snapshot, then every published tick summary until
// the client goes away or the server closes.
func (s *Server) stream(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	ctx := conn.CloseRead(c.Request.Context())
	if err := s.write(ctx, conn, s.sim.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case summary, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server closing")
				return
			}
			if err := s.write(ctx, conn, summary); err != nil {
				s.log.WithError(err).Debug("websocket write failed")
				return
			}
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, summary model.TickSummary) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, summary)
}
