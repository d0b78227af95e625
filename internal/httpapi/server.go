// Package httpapi exposes the repositories over JSON HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sandeepkv93/remindd/internal/logging"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/repository"
	"github.com/sandeepkv93/remindd/internal/storage"
)

type Reminders interface {
	Create(ctx context.Context, in model.Reminder) (model.Reminder, error)
	Update(ctx context.Context, in model.Reminder) (model.Reminder, error)
	Complete(ctx context.Context, id string) (model.Reminder, error)
	Snooze(ctx context.Context, id string, minutes int) (model.Reminder, error)
	Dismiss(ctx context.Context, id string) (model.Reminder, error)
	Reschedule(ctx context.Context, id string, due time.Time) (model.Reminder, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (model.Reminder, error)
	List(ctx context.Context, filter storage.ReminderFilter) ([]model.Reminder, error)
	Active(ctx context.Context) ([]model.Reminder, error)
	Sync(ctx context.Context) (int, error)
	NextNotification(ctx context.Context) (model.Candidate, bool, error)
}

// Catalog is the group or tag repository.
type Catalog[T any] interface {
	Create(ctx context.Context, in T) (T, error)
	Update(ctx context.Context, in T) (T, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (T, error)
	List(ctx context.Context) ([]T, error)
	Sync(ctx context.Context) (int, error)
}

type Server struct {
	reminders Reminders
	groups    Catalog[model.Group]
	tags      Catalog[model.Tag]
	log       *zap.Logger
	router    *gin.Engine
}

func NewServer(reminders Reminders, groups Catalog[model.Group], tags Catalog[model.Tag], corsOrigins []string, log *zap.Logger) *Server {
	s := &Server{
		reminders: reminders,
		groups:    groups,
		tags:      tags,
		log:       logging.OrNop(log),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.accessLog())
	if len(corsOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     corsOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })
	router.POST("/sync", s.syncAll)

	r := router.Group("/reminders")
	{
		r.GET("", s.listReminders)
		r.POST("", s.createReminder)
		r.GET("/active", s.activeReminders)
		r.GET("/next", s.nextNotification)
		r.GET("/:id", s.getReminder)
		r.PUT("/:id", s.updateReminder)
		r.DELETE("/:id", s.deleteReminder)
		r.POST("/:id/complete", s.completeReminder)
		r.POST("/:id/snooze", s.snoozeReminder)
		r.POST("/:id/dismiss", s.dismissReminder)
		r.POST("/:id/reschedule", s.rescheduleReminder)
	}

	catalogRoutes(router.Group("/groups"), s, groups, func(req catalogRequest) model.Group {
		return model.Group{Name: req.Name, Color: req.Color}
	}, func(g model.Group, id string) model.Group {
		g.ID = id
		return g
	})
	catalogRoutes(router.Group("/tags"), s, tags, func(req catalogRequest) model.Tag {
		return model.Tag{Name: req.Name, Color: req.Color}
	}, func(t model.Tag, id string) model.Tag {
		t.ID = id
		return t
	})

	s.router = router
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("http listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) syncAll(c *gin.Context) {
	ctx := c.Request.Context()
	out := gin.H{}
	var errs []error
	for name, sync := range map[string]func(context.Context) (int, error){
		"reminders": s.reminders.Sync,
		"groups":    s.groups.Sync,
		"tags":      s.tags.Sync,
	} {
		n, err := sync(ctx)
		out[name] = n
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.log.Warn("sync incomplete", zap.Error(err))
		out["error"] = err.Error()
		c.JSON(http.StatusAccepted, out)
		return
	}
	c.JSON(http.StatusOK, out)
}

// handleError maps domain errors onto status codes.
func (s *Server) handleError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrSignedOut):
		status = http.StatusUnauthorized
	case errors.Is(err, repository.ErrInvalidTransition):
		status = http.StatusConflict
	case isValidation(err):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
