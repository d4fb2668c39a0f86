package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wardroster/internal/syncengine"
	"wardroster/pkg/domain"
)

type cycleResponse struct {
	Outcome        syncengine.Outcome        `json:"outcome"`
	Classification syncengine.Classification `json:"classification,omitempty"`
	AutoResolved   syncengine.Choice         `json:"autoResolved,omitempty"`
	StartedAt      time.Time                 `json:"startedAt"`
	DurationMS     int64                     `json:"durationMs"`
	Error          string                    `json:"error,omitempty"`
}

type autoSyncRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type resolveRequest struct {
	Choice string `json:"choice" binding:"required"`
}

type signInRequest struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (s *Server) syncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status())
}

// syncNow reports failed cycles with 200 and the error in the body: the
// cycle ran, the remote did not cooperate.
func (s *Server) syncNow(c *gin.Context) {
	report, err := s.engine.SyncNow(c.Request.Context())
	if errors.Is(err, syncengine.ErrCycleInFlight) {
		s.writeError(c, err)
		return
	}
	body := cycleResponse{
		Outcome:        report.Outcome,
		Classification: report.Classification,
		AutoResolved:   report.AutoResolved,
		StartedAt:      report.StartedAt,
		DurationMS:     report.Duration.Milliseconds(),
	}
	if report.Err != nil {
		body.Error = report.Err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) setAutoSync(c *gin.Context) {
	var req autoSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s.engine.SetAutoSync(*req.Enabled)
	c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) pendingConflict(c *gin.Context) {
	conflict, ok := s.engine.PendingConflict()
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: syncengine.ErrNoConflict.Error()})
		return
	}
	c.JSON(http.StatusOK, conflict)
}

func (s *Server) resolveConflict(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	choice, err := syncengine.ParseChoice(req.Choice)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.engine.ResolveConflict(c.Request.Context(), choice); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) signIn(c *gin.Context) {
	if s.session == nil {
		s.writeError(c, domain.InvalidOperationError{Op: "sign in", Reason: "the configured remote does not use sign-in"})
		return
	}
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Token == "" {
		s.writeError(c, domain.ValidationError{Field: "token", Message: "token is required"})
		return
	}
	var expires time.Time
	if req.ExpiresAt != nil {
		expires = *req.ExpiresAt
	}
	s.session.SignIn(req.Token, expires)
	c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) signOut(c *gin.Context) {
	if s.session == nil {
		s.writeError(c, domain.InvalidOperationError{Op: "sign out", Reason: "the configured remote does not use sign-in"})
		return
	}
	s.session.SignOut()
	c.JSON(http.StatusOK, s.engine.Status())
}
