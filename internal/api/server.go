// Package api exposes the assistant over HTTP with gin.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"travel-assistant/internal/models"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// TurnProcessor is satisfied by *dispatcher.Dispatcher.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, threadID, message string) (*models.TurnResult, error)
}

// ThreadStore is the part of session.RedisStore the API reads and edits.
type ThreadStore interface {
	Update(ctx context.Context, threadID string, patch map[string]string, missing []string) error
	SetLastIntent(ctx context.Context, threadID string, intent models.Intent) error
	GetLastIntent(ctx context.Context, threadID string) (models.Intent, error)
	SetReceipts(ctx context.Context, threadID string, receipts models.Receipts) error
	GetReceipts(ctx context.Context, threadID string) (models.Receipts, error)
	Delete(ctx context.Context, threadID string) error
}

// ReceiptHistory is satisfied by *session.ReceiptArchive.
type ReceiptHistory interface {
	Recent(ctx context.Context, threadID string, limit int) ([]models.Receipts, error)
}

// Locker serializes turns per thread; *dispatcher.ThreadLocks satisfies it.
type Locker interface {
	Lock(threadID string) func()
}

// ReadyCheck reports whether a dependency is reachable.
type ReadyCheck func(ctx context.Context) error

type Deps struct {
	Turns   TurnProcessor
	Store   ThreadStore
	Locks   Locker
	History ReceiptHistory
	Ready   map[string]ReadyCheck
}

// Server serves the chat API.
type Server struct {
	turns   TurnProcessor
	store   ThreadStore
	locks   Locker
	history ReceiptHistory
	ready   map[string]ReadyCheck
	logger  Logger
	now     func() time.Time
}

// NewServer creates a Server. Deps.History may be nil.
func NewServer(deps Deps, log Logger) *Server {
	return &Server{
		turns:   deps.Turns,
		store:   deps.Store,
		locks:   deps.Locks,
		history: deps.History,
		ready:   deps.Ready,
		logger:  log.With(map[string]interface{}{"component": "api"}),
		now:     time.Now,
	}
}

// Routes builds the gin engine. Callers set gin's mode beforehand.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(Recovery(s.logger), RequestLogger(s.logger))

	r.GET("/health", s.health)
	r.GET("/ready", s.readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/chat", s.chat)
	api.GET("/threads/:id", s.threadInfo)
	api.PATCH("/threads/:id/slots", s.patchSlots)
	api.GET("/threads/:id/receipts", s.receipts)
	api.DELETE("/threads/:id/receipts", s.clearReceipts)
	api.GET("/threads/:id/receipts/history", s.receiptHistory)
	api.DELETE("/threads/:id", s.resetThread)
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   s.now().Format(time.RFC3339),
	})
}

func (s *Server) readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range s.ready {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", map[string]interface{}{"failed": failed})
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "failed": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   s.now().Format(time.RFC3339),
	})
}
