package api

import (
	"errors"
	"net/http"

	"github.com/Gemini-Podplai/mumabear/internal/logging"
	"github.com/Gemini-Podplai/mumabear/internal/middleware"
	"github.com/Gemini-Podplai/mumabear/internal/session"
	"github.com/gin-gonic/gin"
)

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	Name                string  `json:"name"`
	Mode                string  `json:"mode" binding:"required"`
	CreatorID           string  `json:"creator_id" binding:"required"`
	CreatorName         string  `json:"creator_name"`
	CreatorRole         string  `json:"creator_role"`
	AgenticControlLevel float64 `json:"agentic_control_level"`
}

// ParticipantRequest is the body of join and leave.
type ParticipantRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
	Name          string `json:"name"`
	Role          string `json:"role"`
}

// TakeoverRequest is the body of takeover.
type TakeoverRequest struct {
	Level string `json:"level"`
}

func sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrParticipantNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrDuplicateParticipant):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrInvalidMode), errors.Is(err, session.ErrInvalidRole),
		errors.Is(err, session.ErrInvalidTakeoverLevel), errors.Is(err, session.ErrInvalidParticipantID):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

// CreateSession handles POST /api/sessions.
func (h *Handlers) CreateSession(c *gin.Context) {
	var body CreateSessionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	s, err := h.sessions.Create(body.Name, session.Mode(body.Mode), session.Participant{
		ID:   body.CreatorID,
		Name: body.CreatorName,
		Role: session.Role(body.CreatorRole),
	}, body.AgenticControlLevel)
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "session": s})
}

// ListSessions handles GET /api/sessions.
func (h *Handlers) ListSessions(c *gin.Context) {
	list := h.sessions.List()
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(list), "sessions": list})
}

// GetSession handles GET /api/sessions/:id.
func (h *Handlers) GetSession(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": s})
}

// JoinSession handles POST /api/sessions/:id/join.
func (h *Handlers) JoinSession(c *gin.Context) {
	var body ParticipantRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.sessions.Join(c.Param("id"), session.Participant{
		ID:   body.ParticipantID,
		Name: body.Name,
		Role: session.Role(body.Role),
	})
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": s})
}

// LeaveSession handles POST /api/sessions/:id/leave.
func (h *Handlers) LeaveSession(c *gin.Context) {
	var body ParticipantRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.sessions.Leave(c.Param("id"), body.ParticipantID)
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": s})
}

// TakeoverSession handles POST /api/sessions/:id/takeover.
func (h *Handlers) TakeoverSession(c *gin.Context) {
	var body TakeoverRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if body.Level == "" {
		body.Level = "collaborative"
	}
	s, err := h.sessions.Takeover(c.Param("id"), body.Level)
	if err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": s})
}

// SessionEvents handles GET /api/sessions/:id/events as a websocket stream.
func (h *Handlers) SessionEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.sessions.Get(id); err != nil {
		sessionError(c, err)
		return
	}
	if h.hub == nil {
		fail(c, http.StatusServiceUnavailable, "live session events are disabled")
		return
	}
	if err := h.hub.ServeWS(c.Writer, c.Request, id); err != nil {
		// The upgrader has already written the HTTP error.
		logging.WithRequest(middleware.GetRequestID(c)).WithError(err).Debug("Websocket upgrade failed")
	}
}
