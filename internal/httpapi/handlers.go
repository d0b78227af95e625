package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/repository"
	"github.com/sandeepkv93/remindd/internal/storage"
)

// reminderRequest carries the editable fields of a reminder. Pointers
// distinguish "unset" from "cleared" on PUT.
type reminderRequest struct {
	Title             *string               `json:"title"`
	Description       *string               `json:"description"`
	DueTime           *time.Time            `json:"dueTime"`
	ReminderTime      *time.Time            `json:"reminderTime"`
	Deadline          *time.Time            `json:"deadline"`
	Status            *model.Status         `json:"status"`
	Priority          *model.Priority       `json:"priority"`
	Recurrence        *model.RecurrenceRule `json:"recurrence"`
	TargetOccurrences *int                  `json:"targetOccurrences"`
	GroupID           *string               `json:"groupId"`
	TagIDs            []string              `json:"tagIds"`
}

func (req reminderRequest) apply(r *model.Reminder) {
	if req.Title != nil {
		r.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		r.Description = *req.Description
	}
	if req.DueTime != nil {
		r.DueTime = *req.DueTime
	}
	if req.ReminderTime != nil {
		r.ReminderTime = req.ReminderTime
	}
	if req.Deadline != nil {
		r.Deadline = req.Deadline
	}
	if req.Status != nil {
		r.Status = *req.Status
	}
	if req.Priority != nil {
		r.Priority = *req.Priority
	}
	if req.Recurrence != nil {
		r.Recurrence = req.Recurrence
	}
	if req.TargetOccurrences != nil {
		r.TargetOccurrences = req.TargetOccurrences
	}
	if req.GroupID != nil {
		r.GroupID = *req.GroupID
	}
	if req.TagIDs != nil {
		r.TagIDs = req.TagIDs
	}
}

type snoozeRequest struct {
	Minutes int `json:"minutes" binding:"required"`
}

type rescheduleRequest struct {
	DueTime time.Time `json:"dueTime" binding:"required"`
}

type catalogRequest struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color"`
}

func (s *Server) listReminders(c *gin.Context) {
	filter := storage.ReminderFilter{
		GroupID: c.Query("group"),
		TagID:   c.Query("tag"),
	}
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			st := model.Status(strings.ToUpper(strings.TrimSpace(part)))
			if !st.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status " + strconv.Quote(part)})
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	var ok bool
	if filter.Limit, ok = s.queryInt(c, "limit"); !ok {
		return
	}
	if filter.Offset, ok = s.queryInt(c, "offset"); !ok {
		return
	}

	items, err := s.reminders.List(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(items))
}

func (s *Server) queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return 0, false
	}
	return n, true
}

func (s *Server) createReminder(c *gin.Context) {
	var req reminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title == nil || req.DueTime == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and dueTime are required"})
		return
	}
	var in model.Reminder
	req.apply(&in)
	out, err := s.reminders.Create(c.Request.Context(), in)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (s *Server) activeReminders(c *gin.Context) {
	items, err := s.reminders.Active(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(items))
}

func (s *Server) nextNotification(c *gin.Context) {
	cand, ok, err := s.reminders.NextNotification(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, cand)
}

func (s *Server) getReminder(c *gin.Context) {
	out, err := s.reminders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) updateReminder(c *gin.Context) {
	var req reminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	cur, err := s.reminders.Get(ctx, c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	req.apply(&cur)
	out, err := s.reminders.Update(ctx, cur)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteReminder(c *gin.Context) {
	if err := s.reminders.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) completeReminder(c *gin.Context) {
	s.respond(c, func(id string) (model.Reminder, error) {
		return s.reminders.Complete(c.Request.Context(), id)
	})
}

func (s *Server) dismissReminder(c *gin.Context) {
	s.respond(c, func(id string) (model.Reminder, error) {
		return s.reminders.Dismiss(c.Request.Context(), id)
	})
}

func (s *Server) snoozeReminder(c *gin.Context) {
	var req snoozeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.respond(c, func(id string) (model.Reminder, error) {
		return s.reminders.Snooze(c.Request.Context(), id, req.Minutes)
	})
}

func (s *Server) rescheduleReminder(c *gin.Context) {
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.respond(c, func(id string) (model.Reminder, error) {
		return s.reminders.Reschedule(c.Request.Context(), id, req.DueTime)
	})
}

func (s *Server) respond(c *gin.Context, do func(id string) (model.Reminder, error)) {
	out, err := do(c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// catalogRoutes mounts CRUD for groups or tags.
func catalogRoutes[T any](rg *gin.RouterGroup, s *Server, svc Catalog[T], build func(catalogRequest) T, setID func(T, string) T) {
	rg.GET("", func(c *gin.Context) {
		items, err := svc.List(c.Request.Context())
		if err != nil {
			s.handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, nonNil(items))
	})
	rg.POST("", func(c *gin.Context) {
		var req catalogRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		out, err := svc.Create(c.Request.Context(), build(req))
		if err != nil {
			s.handleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, out)
	})
	rg.GET("/:id", func(c *gin.Context) {
		out, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	})
	rg.PUT("/:id", func(c *gin.Context) {
		var req catalogRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		out, err := svc.Update(c.Request.Context(), setID(build(req), c.Param("id")))
		if err != nil {
			s.handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	})
	rg.DELETE("/:id", func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			s.handleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func isValidation(err error) bool {
	return errors.Is(err, repository.ErrInvalid) || errors.Is(err, repository.ErrInvalidSnooze)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
