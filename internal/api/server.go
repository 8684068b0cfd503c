// Package api is the HTTP transport of the task history service.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"taskvault/internal/auth"
	"taskvault/internal/observability"
	"taskvault/internal/runner"
	"taskvault/pkg/history"
	"taskvault/pkg/journal"
	"taskvault/pkg/task"
	"taskvault/pkg/version"
)

// TestRunner executes a solution against its unit tests.
type TestRunner interface {
	Run(ctx context.Context, body []byte) (*runner.Response, error)
}

// TopicSuggester classifies a problem into algorithmic topics.
type TopicSuggester interface {
	Suggest(ctx context.Context, problem, solution string) ([]string, error)
}

// LoginProvider builds the URL that starts an interactive sign-in.
type LoginProvider interface {
	AuthorizeURL(redirectTo string) string
}

// Deps are the collaborators the server calls into. Journal, Login,
// Runner, Topics and Metrics are optional.
type Deps struct {
	Engine    *history.Engine
	Journal   *journal.Bus
	Auth      auth.Authenticator
	Login     LoginProvider
	Allowlist *auth.Allowlist
	Runner    TestRunner
	Topics    TopicSuggester
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Options tune the middleware chain.
type Options struct {
	// SharedSecret is compared with X-Service-Auth when RequireSecret is
	// set.
	SharedSecret  string
	RequireSecret bool
	CORSOrigins   []string
	// RedirectURL is where sign-in returns to when the caller names none.
	RedirectURL string
	// StoreTimeout bounds the store work of one request. Zero disables it.
	StoreTimeout time.Duration
	ServiceName  string
}

// Server is the HTTP API server.
type Server struct {
	engine    *history.Engine
	journal   *journal.Bus
	auth      auth.Authenticator
	login     LoginProvider
	allowlist *auth.Allowlist
	runner    TestRunner
	topics    TopicSuggester
	metrics   *observability.Metrics
	log       *slog.Logger
	opts      Options
	router    *gin.Engine
}

// New creates a Server and registers its routes.
func New(d Deps, opts Options) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "taskvault"
	}
	s := &Server{
		engine:    d.Engine,
		journal:   d.Journal,
		auth:      d.Auth,
		login:     d.Login,
		allowlist: d.Allowlist,
		runner:    d.Runner,
		topics:    d.Topics,
		metrics:   d.Metrics,
		log:       d.Logger,
		opts:      opts,
		router:    gin.New(),
	}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(
		requestID(),
		s.accessLog(),
		gin.CustomRecoveryWithWriter(io.Discard, s.recovered),
		otelgin.Middleware(s.opts.ServiceName),
		s.cors(),
	)
	r.NoRoute(func(c *gin.Context) { writeError(c, http.StatusNotFound, "Not Found") })

	// System
	r.GET("/health", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api", s.serviceSecret())
	api.GET("/auth/user", s.handleAuthUser)
	api.GET("/auth/start", s.handleAuthStart)

	user := api.Group("", s.requireUser())

	// Store-backed routes share the per-request store deadline.
	store := user.Group("", s.storeTimeout())
	store.GET("/status", s.handleStatus)

	ds := store.Group("/dataset")
	ds.GET("", s.handleTaskList)
	ds.POST("", s.handleTaskCreate)
	ds.POST("/_bulk", s.handleBulkCreate)
	ds.POST("/_stamp_paths", s.handleStampPaths)
	ds.POST("/import/csv", s.handleImportCSV)
	ds.POST("/import/jsonl", s.handleImportJSONL)
	ds.GET("/:id", s.handleTaskGet)
	ds.PUT("/:id", s.handleTaskUpdate)
	ds.DELETE("/:id", s.handleTaskDelete)
	ds.GET("/:id/versions", s.handleVersionList)
	ds.POST("/:id/versions", s.handleVersionCreate)
	ds.GET("/:id/versions/:versionId", s.handleVersionGet)
	ds.PATCH("/:id/versions/:versionId", s.handleVersionUpdate)
	ds.PUT("/:id/versions/:versionId", s.handleVersionUpdate)
	ds.PUT("/:id/head", s.handleSetHead)
	ds.POST("/:id/save", s.handleSave)
	ds.GET("/:id/journal", s.handleTaskJournal)

	// Long-lived or proxied; these carry their own deadlines.
	user.GET("/journal/stream", s.handleJournalStream)
	user.POST("/run-tests", s.handleRunTests)
	user.POST("/suggest-topics", s.handleSuggestTopics)
}

func (s *Server) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	n, err := s.engine.CountTasks(c.Request.Context())
	if err != nil {
		s.fail(c, err, "Failed to count tasks")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"tasks": n})
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// fail maps an operation error to a status and message. Errors that are
// not the caller's fault are reported as "<action>: <error>".
func (s *Server) fail(c *gin.Context, err error, action string) {
	var missing *history.MissingFieldError
	switch {
	case errors.As(err, &missing):
		writeError(c, http.StatusBadRequest, "Missing '"+missing.Field+"'")
	case errors.Is(err, history.ErrNoUpdates):
		writeError(c, http.StatusBadRequest, "No updates provided")
	case errors.Is(err, version.ErrNotFound):
		writeError(c, http.StatusNotFound, "Version not found")
	case errors.Is(err, task.ErrNotFound):
		writeError(c, http.StatusNotFound, "Item not found")
	case errors.Is(err, history.ErrConcurrentModification):
		writeError(c, http.StatusConflict, "Item was modified concurrently; reload and retry")
	case errors.Is(err, context.DeadlineExceeded):
		s.log.Warn(action, "error", err, "rid", requestIDOf(c))
		writeError(c, http.StatusGatewayTimeout, action+": "+err.Error())
	default:
		s.log.Error(action, "error", err, "path", c.Request.URL.Path, "rid", requestIDOf(c))
		writeError(c, http.StatusInternalServerError, action+": "+err.Error())
	}
}

func queryInt(c *gin.Context, key string, defaultVal int) int {
	v := c.Query(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
