package alerts

import (
	"github.com/gin-gonic/gin"

	"tradewatch/pkg/response"
)

// GinHandlers exposes task control over HTTP.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates HTTP handlers for the alert service.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// TaskStatusHandler reports a task's scheduling state.
func (h *GinHandlers) TaskStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := h.service.Status(c.Param("task_id"))
		if err != nil {
			response.NotFound(c, "Task not found")
			return
		}
		response.Success(c, status)
	}
}

// StartTaskHandler starts a task's schedule.
func (h *GinHandlers) StartTaskHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.Start(c.Param("task_id")); err != nil {
			response.NotFound(c, "Task not found")
			return
		}
		response.Success(c, gin.H{"status": "Task started"})
	}
}

// StopTaskHandler stops a task's schedule.
func (h *GinHandlers) StopTaskHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.Stop(c.Param("task_id")); err != nil {
			response.NotFound(c, "Task not found")
			return
		}
		response.Success(c, gin.H{"status": "Task stopped"})
	}
}
