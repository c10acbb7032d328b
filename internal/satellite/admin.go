package satellite

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/satellite/internal/auth"
	"github.com/danmuck/satellite/internal/command"
	"github.com/danmuck/satellite/internal/entity"
	"github.com/danmuck/satellite/internal/observability"
	"github.com/danmuck/satellite/internal/voice"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// commandWait bounds how long POST /commands/:key waits for a result.
const commandWait = 30 * time.Second

// AdminDeps are the views the admin surface reads and drives. Pipeline may
// be nil. A nil Auth leaves the POST routes open.
type AdminDeps struct {
	Registry *entity.Registry
	Server   *Server
	Pipeline *voice.Pipeline
	Dispatch CommandFunc
	Auth     auth.Validator
}

// Admin is the local HTTP control surface for UI and tray collaborators.
type Admin struct {
	name    string
	deps    AdminDeps
	router  *gin.Engine
	started time.Time
}

type entityView struct {
	Key      uint32        `json:"key"`
	ObjectID string        `json:"object_id"`
	Name     string        `json:"name"`
	Kind     entity.Kind   `json:"kind"`
	Command  string        `json:"command,omitempty"`
	Value    *entity.Value `json:"value,omitempty"`
}

type announceBody struct {
	MediaURL          string `json:"media_url"`
	Text              string `json:"text"`
	PreannounceURL    string `json:"preannounce_url"`
	Chime             bool   `json:"chime"`
	Duck              *bool  `json:"duck"`
	StartConversation bool   `json:"start_conversation"`
}

type commandBody struct {
	Args map[string]string `json:"args"`
}

func NewAdmin(name string, corsOrigins []string, deps AdminDeps) *Admin {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{name: name, deps: deps, router: r, started: time.Now()}
	a.routes()
	return a
}

func (a *Admin) Handler() http.Handler {
	return a.router
}

// Run serves on addr until ctx ends.
func (a *Admin) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: a.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	log.Info().
		Str("component", "admin").
		Str("addr", ln.Addr().String()).
		Msg("admin listener started")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *Admin) routes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.started).String(),
			"device":  a.name,
			"version": Version,
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router.GET("/ready", func(c *gin.Context) {
		hub, connected := a.deps.Server.Current()
		body := gin.H{
			"ready":         true,
			"uptime":        time.Since(a.started).String(),
			"device":        a.name,
			"hub_connected": connected,
		}
		if connected {
			body["hub"] = hub
		}
		c.JSON(http.StatusOK, body)
	})

	a.router.GET("/entities", func(c *gin.Context) {
		list := a.deps.Registry.List()
		out := make([]entityView, 0, len(list))
		for _, e := range list {
			v := entityView{
				Key:      e.Key,
				ObjectID: e.ObjectID,
				Name:     e.Name,
				Kind:     e.Kind,
				Command:  e.Attrs.Command,
			}
			if e.Value.Valid {
				val := e.Value
				v.Value = &val
			}
			out = append(out, v)
		}
		c.JSON(http.StatusOK, gin.H{"entities": out})
	})

	a.router.GET("/voice", func(c *gin.Context) {
		if a.deps.Pipeline == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "voice disabled"})
			return
		}
		c.JSON(http.StatusOK, a.deps.Pipeline.Status())
	})

	a.router.GET("/timers", func(c *gin.Context) {
		if a.deps.Pipeline == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "voice disabled"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"timers": a.deps.Pipeline.Timers().List()})
	})

	ctl := a.router.Group("/", auth.Require(a.deps.Auth))

	ctl.POST("/announce", func(c *gin.Context) {
		if a.deps.Pipeline == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "voice disabled"})
			return
		}
		var body announceBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if strings.TrimSpace(body.MediaURL) == "" && !body.Chime {
			c.JSON(http.StatusBadRequest, gin.H{"error": "media_url or chime required"})
			return
		}
		duck := true
		if body.Duck != nil {
			duck = *body.Duck
		}
		err := a.deps.Pipeline.Announce(voice.Announcement{
			MediaURL:          body.MediaURL,
			Text:              body.Text,
			PreannounceURL:    body.PreannounceURL,
			Chime:             body.Chime,
			Duck:              duck,
			StartConversation: body.StartConversation,
		})
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	})

	ctl.POST("/wake", func(c *gin.Context) {
		if a.deps.Pipeline == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "voice disabled"})
			return
		}
		if err := a.deps.Pipeline.Wake(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "waking"})
	})

	ctl.POST("/commands/:key", a.runCommand)
}

// runCommand dispatches one admin command and waits for its result.
func (a *Admin) runCommand(c *gin.Context) {
	if a.deps.Dispatch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "commands disabled"})
		return
	}
	var body commandBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	cmd := command.Command{
		Key:    command.Key(c.Param("key")),
		Args:   body.Args,
		Source: command.SourceAdmin,
	}
	results := make(chan command.Result, 1)
	_ = a.deps.Dispatch(c.Request.Context(), cmd, func(res command.Result) {
		results <- res
	})

	timer := time.NewTimer(commandWait)
	defer timer.Stop()
	select {
	case res := <-results:
		body := gin.H{
			"command": res.Command.Key,
			"outcome": res.Outcome,
			"summary": res.Summary(),
		}
		c.JSON(outcomeStatus(res), body)
	case <-timer.C:
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "command still running"})
	case <-c.Request.Context().Done():
	}
}

func outcomeStatus(res command.Result) int {
	switch res.Outcome {
	case command.OutcomeSuccess:
		return http.StatusOK
	case command.OutcomeRejected:
		return http.StatusForbidden
	case command.OutcomeUnknown:
		return http.StatusNotFound
	}
	if errors.Is(res.Err, command.ErrQueueFull) || errors.Is(res.Err, command.ErrClosed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
