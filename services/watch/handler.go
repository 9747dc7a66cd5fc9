package watch

import (
	"net/http"

	"pagewatch/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type taskResponse struct {
	*Task
	LastResult          string   `json:"last_result"`
	LastMatchedCriteria *bool    `json:"last_matched_criteria"`
	Outcome             *Outcome `json:"outcome,omitempty"`
}

func toResponse(t *Task) taskResponse {
	outcome, _ := t.Outcome()
	return taskResponse{
		Task:                t,
		LastResult:          t.LastResult(),
		LastMatchedCriteria: t.LastMatchedCriteria(),
		Outcome:             outcome,
	}
}

type credentialRequest struct {
	Key string `json:"key" binding:"required"`
}

func (h *Handler) Register(r gin.IRouter) {
	tasks := r.Group("/v1/tasks")
	tasks.GET("", h.list)
	tasks.POST("", h.create)
	tasks.GET("/:id", h.get)
	tasks.PATCH("/:id", h.update)
	tasks.DELETE("/:id", h.delete)
	tasks.POST("/:id/start", h.start)
	tasks.POST("/:id/stop", h.stop)
	tasks.POST("/:id/run", h.run)

	creds := r.Group("/v1/credentials")
	creds.PUT("/:provider", h.setCredential)
	creds.DELETE("/:provider", h.clearCredential)
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(errutil.Validation("invalid request body", err))
}

func (h *Handler) list(c *gin.Context) {
	tasks, err := h.service.ListTasks(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, toResponse(&tasks[i]))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": out})
}

func (h *Handler) create(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	task, err := h.service.CreateTask(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(task))
}

func (h *Handler) get(c *gin.Context) {
	task, err := h.service.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toResponse(task))
}

func (h *Handler) update(c *gin.Context) {
	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	task, err := h.service.UpdateTask(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toResponse(task))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.service.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) start(c *gin.Context) {
	task, err := h.service.StartTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toResponse(task))
}

func (h *Handler) stop(c *gin.Context) {
	task, err := h.service.StopTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toResponse(task))
}

// run blocks until the test run finishes. A failed run still answers 200 with
// the recorded outcome; only a run that could not be recorded is an error.
func (h *Handler) run(c *gin.Context) {
	outcome, err := h.service.RunNow(c.Request.Context(), c.Param("id"))
	if outcome == nil || errutil.Is(err, errutil.KindPersistence) {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *Handler) setCredential(c *gin.Context) {
	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.service.SetCredential(c.Request.Context(), c.Param("provider"), req.Key); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) clearCredential(c *gin.Context) {
	if err := h.service.ClearCredential(c.Request.Context(), c.Param("provider")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
