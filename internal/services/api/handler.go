// Package api is the operational HTTP surface of the notifier: dispatch control,
// job status, failed-notification retries, statistics and appointment hooks.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NordCoder/Reminderus/internal/domain/appointment"
	"github.com/NordCoder/Reminderus/internal/domain/notification"
	"github.com/NordCoder/Reminderus/internal/obs"
	"github.com/NordCoder/Reminderus/internal/services/delivery"
	"github.com/NordCoder/Reminderus/internal/services/scheduler"
)

type Jobs interface {
	TriggerDispatch(ctx context.Context) (delivery.Summary, error)
	Status() []scheduler.JobStatus
	Start()
	Stop() context.Context
}

type Retries interface {
	RetryOne(ctx context.Context, id uuid.UUID) (*notification.Notification, error)
	RetryBatch(ctx context.Context, limit int) (int, error)
}

type Reports interface {
	FindFailed(ctx context.Context, limit int) ([]*notification.Notification, error)
	Statistics(ctx context.Context) (*notification.Statistics, error)
}

type Reminders interface {
	Schedule(ctx context.Context, a appointment.Appointment) ([]*notification.Notification, error)
	Cancel(ctx context.Context, appointmentID string) (int, error)
	Reschedule(ctx context.Context, a appointment.Appointment) (int, []*notification.Notification, error)
}

const (
	defaultListLimit  = 50
	defaultRetryLimit = 100
	maxLimit          = 1000
)

type Handler struct {
	jobs       Jobs
	retries    Retries
	reports    Reports
	reminders  Reminders
	retryLimit int
	log        *zap.Logger
}

func NewHandler(jobs Jobs, retries Retries, reports Reports, reminders Reminders, retryLimit int, log *zap.Logger) *Handler {
	if retryLimit <= 0 {
		retryLimit = defaultRetryLimit
	}
	return &Handler{
		jobs:       jobs,
		retries:    retries,
		reports:    reports,
		reminders:  reminders,
		retryLimit: retryLimit,
		log:        obs.Component(log, "api"),
	}
}

func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")

	v1.POST("/dispatch", h.TriggerDispatch)
	v1.GET("/jobs", h.ListJobs)
	v1.POST("/jobs/start", h.StartJobs)
	v1.POST("/jobs/stop", h.StopJobs)

	v1.GET("/notifications/failed", h.ListFailed)
	v1.GET("/notifications/stats", h.Statistics)
	v1.POST("/notifications/retry", h.RetryBatch)
	v1.POST("/notifications/:id/retry", h.RetryOne)

	v1.POST("/appointments/:id/reminders", h.ScheduleReminders)
	v1.PUT("/appointments/:id/reminders", h.RescheduleReminders)
	v1.DELETE("/appointments/:id/reminders", h.CancelReminders)
}

type summaryResponse struct {
	Processed  int    `json:"processed"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	Duration   string `json:"duration"`
}

func (h *Handler) TriggerDispatch(c *gin.Context) {
	sum, err := h.jobs.TriggerDispatch(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaryResponse{
		Processed:  sum.Processed,
		Successful: sum.Successful,
		Failed:     sum.Failed,
		Duration:   sum.Duration.String(),
	})
}

func (h *Handler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.jobs.Status()})
}

func (h *Handler) StartJobs(c *gin.Context) {
	h.jobs.Start()
	c.JSON(http.StatusOK, gin.H{"jobs": h.jobs.Status()})
}

func (h *Handler) StopJobs(c *gin.Context) {
	h.jobs.Stop()
	c.JSON(http.StatusOK, gin.H{"jobs": h.jobs.Status()})
}

func (h *Handler) ListFailed(c *gin.Context) {
	limit, ok := h.limit(c, defaultListLimit)
	if !ok {
		return
	}
	list, err := h.reports.FindFailed(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if list == nil {
		list = []*notification.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "count": len(list)})
}

func (h *Handler) Statistics(c *gin.Context) {
	st, err := h.reports.Statistics(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) RetryOne(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	n, err := h.retries.RetryOne(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) RetryBatch(c *gin.Context) {
	limit, ok := h.limit(c, h.retryLimit)
	if !ok {
		return
	}
	n, err := h.retries.RetryBatch(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requeued": n})
}

type appointmentRequest struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Customer string `json:"customer"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Service  string `json:"service"`
}

func (r appointmentRequest) toAppointment(id string) (appointment.Appointment, error) {
	a := appointment.Appointment{
		ID:        id,
		TimeOfDay: r.Time,
		Customer:  r.Customer,
		Email:     r.Email,
		Phone:     r.Phone,
		Service:   r.Service,
	}
	if r.Date != "" {
		d, err := time.Parse(time.DateOnly, r.Date)
		if err != nil {
			return a, err
		}
		a.Date = d
	}
	return a, nil
}

func (h *Handler) bindAppointment(c *gin.Context) (appointment.Appointment, bool) {
	var req appointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: " + err.Error()})
		return appointment.Appointment{}, false
	}
	a, err := req.toAppointment(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return appointment.Appointment{}, false
	}
	return a, true
}

func scheduledStatus(created []*notification.Notification) int {
	if len(created) > 0 {
		return http.StatusCreated
	}
	return http.StatusOK
}

func (h *Handler) ScheduleReminders(c *gin.Context) {
	a, ok := h.bindAppointment(c)
	if !ok {
		return
	}
	created, err := h.reminders.Schedule(c.Request.Context(), a)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if created == nil {
		created = []*notification.Notification{}
	}
	c.JSON(scheduledStatus(created), gin.H{"scheduled": len(created), "notifications": created})
}

func (h *Handler) RescheduleReminders(c *gin.Context) {
	a, ok := h.bindAppointment(c)
	if !ok {
		return
	}
	cancelled, created, err := h.reminders.Reschedule(c.Request.Context(), a)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if created == nil {
		created = []*notification.Notification{}
	}
	c.JSON(scheduledStatus(created), gin.H{"cancelled": cancelled, "scheduled": len(created), "notifications": created})
}

func (h *Handler) CancelReminders(c *gin.Context) {
	n, err := h.reminders.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": n})
}

func (h *Handler) limit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be within [1," + strconv.Itoa(maxLimit) + "]"})
		return 0, false
	}
	return n, true
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var rej *delivery.Rejection
	switch {
	case errors.As(err, &rej):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": rej.Msg, "reason": rej.Reason})
	case errors.Is(err, notification.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, scheduler.ErrDispatchInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		obs.WithTrace(c.Request.Context(), h.log).Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
