package dashboard

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/hearth/internal/analysis"
	"github.com/zulandar/hearth/internal/commstate"
	"github.com/zulandar/hearth/internal/models"
	"github.com/zulandar/hearth/internal/store"
)

// registerRoutes sets up all API routes on the Gin router.
func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := router.Group("/api")
	api.GET("/state", s.handleGetState)
	api.POST("/state", s.handleSetState)
	api.POST("/pause", s.handlePause)
	api.POST("/resume", s.handleResume)
	api.POST("/ack", s.handleAck)
	api.GET("/risk", s.handleRisk)
	api.GET("/analytics", s.handleAnalytics)
	api.GET("/events", s.handleListEvents)
	api.POST("/events", s.handleRecordEvent)
	api.POST("/events/:id/resolve", s.handleResolveEvent)
	api.GET("/loops", s.handleListLoops)
	api.POST("/loops/:id/resolve", s.handleResolveLoop)
	api.PUT("/capacity", s.handleSetCapacity)
	api.GET("/queue", s.handleQueue)
	api.POST("/queue/drain", s.handleDrain)
	api.GET("/stream", s.handleStream)
}

type pauseRequest struct {
	Topic           string `json:"topic"`
	DurationMinutes int    `json:"duration_minutes"`
}

type stateRequest struct {
	State string `json:"state" binding:"required"`
	Topic string `json:"topic"`
}

type eventRequest struct {
	EventType string         `json:"event_type" binding:"required"`
	Content   map[string]any `json:"content"`
}

type resolveLoopRequest struct {
	Method string `json:"method" binding:"required"`
	Rating int    `json:"rating" binding:"required,min=1,max=5"`
}

type capacityRequest struct {
	EnergyLevel   string `json:"energy_level" binding:"required,oneof=low medium high"`
	CognitiveLoad int    `json:"cognitive_load" binding:"min=0,max=10"`
}

func (s *Server) handleGetState(c *gin.Context) {
	state, err := s.loadState(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleSetState(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !commstate.ValidState(req.State) {
		badRequest(c, "unknown state "+req.State)
		return
	}
	mode, err := s.machine.UpdateState(c.Request.Context(), s.workspaceID,
		commstate.StateChange{State: req.State, Topic: req.Topic}, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toModeView(mode))
}

// handlePause goes through the reliable path: a store outage queues the
// pause and answers 202.
func (s *Server) handlePause(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req pauseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if req.DurationMinutes < 0 {
		badRequest(c, "duration_minutes must not be negative")
		return
	}
	res, err := s.queue.TriggerEmergencyPauseReliable(c.Request.Context(), s.workspaceID,
		req.Topic, actor, time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if res.Queued {
		status = http.StatusAccepted
	}
	body := gin.H{"success": res.Success, "queued": res.Queued, "timeout_end": res.TimeoutEnd}
	if res.Mode != nil {
		body["mode"] = toModeView(res.Mode)
	}
	c.JSON(status, body)
}

func (s *Server) handleResume(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	queued, err := s.queue.ResumeReliable(c.Request.Context(), s.workspaceID, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	if queued {
		c.JSON(http.StatusAccepted, gin.H{"queued": true})
		return
	}
	s.handleGetState(c)
}

func (s *Server) handleAck(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	mode, err := s.machine.Acknowledge(c.Request.Context(), s.workspaceID, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toModeView(mode))
}

func (s *Server) handleRisk(c *gin.Context) {
	c.JSON(http.StatusOK, s.analyzer.EvaluateWorkspace(c.Request.Context(), s.workspaceID))
}

// handleAnalytics always answers 200; a failed computation yields zeroed
// metrics flagged as unavailable.
func (s *Server) handleAnalytics(c *gin.Context) {
	r, err := analysis.ParseTimeRange(c.Query("range"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	m, err := s.analyzer.GetPartnershipMetrics(c.Request.Context(), s.workspaceID, r)
	if err != nil {
		log.Printf("dashboard: analytics %s: %v", s.workspaceID, err)
	}
	c.JSON(http.StatusOK, gin.H{"metrics": m, "available": err == nil})
}

func (s *Server) handleListEvents(c *gin.Context) {
	r, err := analysis.ParseTimeRange(c.Query("range"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	events, err := s.recentEvents(c.Request.Context(), s.now().Add(-r.Duration()))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// handleRecordEvent appends a clarification or signal. Emergency breaks are
// only recorded by the pause path.
func (s *Server) handleRecordEvent(c *gin.Context) {
	actor, ok := s.requireMember(c)
	if !ok {
		return
	}
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.EventType != models.EventAssumptionClarification && req.EventType != models.EventSignal {
		badRequest(c, "event_type must be assumption_clarification or signal")
		return
	}
	content, err := encodeContent(req.Content)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ev := &models.CommunicationEvent{
		WorkspaceID: s.workspaceID,
		UserID:      actor,
		EventType:   req.EventType,
		Content:     content,
	}
	if err := s.store.RecordEvent(c.Request.Context(), ev); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toEventView(ev))
}

func (s *Server) handleResolveEvent(c *gin.Context) {
	if _, ok := s.requireMember(c); !ok {
		return
	}
	if err := s.store.ResolveEvent(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "resolved": true})
}

func (s *Server) handleListLoops(c *gin.Context) {
	r, err := analysis.ParseTimeRange(c.Query("range"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	loops, err := s.loopsSince(c.Request.Context(), s.now().Add(-r.Duration()))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loops": loops})
}

func (s *Server) handleResolveLoop(c *gin.Context) {
	if _, ok := s.requireMember(c); !ok {
		return
	}
	var req resolveLoopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	loop, err := s.analyzer.ResolveLoop(c.Request.Context(), c.Param("id"), req.Method, req.Rating)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLoopView(loop))
}

func (s *Server) handleSetCapacity(c *gin.Context) {
	actor, ok := s.requireMember(c)
	if !ok {
		return
	}
	var req capacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	row := &models.CapacityStatus{
		WorkspaceID:   s.workspaceID,
		UserID:        actor,
		EnergyLevel:   req.EnergyLevel,
		CognitiveLoad: req.CognitiveLoad,
	}
	if err := s.store.SetCapacity(c.Request.Context(), row); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":        row.UserID,
		"day":            row.Day,
		"energy_level":   row.EnergyLevel,
		"cognitive_load": row.CognitiveLoad,
	})
}

func (s *Server) handleQueue(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": s.queue.Items()})
}

func (s *Server) handleDrain(c *gin.Context) {
	res, err := s.queue.Process(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"result": res, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

// requireActor reads the acting member from the header. Membership itself
// is checked by the state machine.
func requireActor(c *gin.Context) (string, bool) {
	actor := c.GetHeader(ActorHeader)
	if actor == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ActorHeader + " header is required"})
		return "", false
	}
	return actor, true
}

// requireMember is requireActor plus a membership check, for routes that
// write without going through the state machine.
func (s *Server) requireMember(c *gin.Context) (string, bool) {
	actor, ok := requireActor(c)
	if !ok {
		return "", false
	}
	member, err := s.store.IsMember(c.Request.Context(), s.workspaceID, actor)
	if err != nil {
		writeError(c, err)
		return "", false
	}
	if !member {
		writeError(c, commstate.ErrUnauthorized)
		return "", false
	}
	return actor, true
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// writeError maps domain errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, commstate.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, commstate.ErrInvalidTransition),
		errors.Is(err, commstate.ErrNotPaused),
		errors.Is(err, store.ErrAlreadyResolved):
		status = http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, commstate.ErrPersistence):
		status = http.StatusServiceUnavailable
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
