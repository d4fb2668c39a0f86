package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"wardroster/internal/roster"
	"wardroster/pkg/domain"
)

type createPatientRequest struct {
	Room string `json:"room"`
	domain.Details
}

type moveRequest struct {
	Room string `json:"room" binding:"required"`
}

type swapRequest struct {
	OtherID string `json:"otherId" binding:"required"`
}

type moveResponse struct {
	Moved    bool                  `json:"moved"`
	Patient  domain.PatientRecord  `json:"patient"`
	Occupant *domain.PatientRecord `json:"occupant,omitempty"`
	FromRoom string                `json:"fromRoom"`
	ToRoom   string                `json:"toRoom"`
	Message  string                `json:"message"`
}

type swapResponse struct {
	Patients [2]domain.PatientRecord `json:"patients"`
	Message  string                  `json:"message"`
}

func parseQuery(c *gin.Context) (domain.RosterQuery, error) {
	q := domain.RosterQuery{
		SortBy:   domain.SortField(c.Query("sort")),
		Priority: domain.Priority(c.Query("priority")),
		Search:   c.Query("search"),
	}
	switch q.SortBy {
	case domain.SortNone, domain.SortRoom, domain.SortPriority:
	default:
		return domain.RosterQuery{}, fmt.Errorf("unknown sort %q", q.SortBy)
	}
	if q.Priority != "" && q.Priority != domain.PriorityAll && !q.Priority.Valid() {
		return domain.RosterQuery{}, fmt.Errorf("unknown priority %q", q.Priority)
	}
	return q, nil
}

func (s *Server) listPatients(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	snap := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"patients":    q.Apply(snap.Patients),
		"version":     snap.Version,
		"lastUpdated": snap.LastUpdated,
	})
}

func (s *Server) getPatient(c *gin.Context) {
	rec, err := s.roster.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) createPatient(c *gin.Context) {
	var req createPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := s.roster.Create(c.Request.Context(), roster.NewPatient{Room: req.Room, Details: req.Details})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) updatePatient(c *gin.Context) {
	var req domain.Details
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := s.roster.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) removePatient(c *gin.Context) {
	if err := s.roster.Remove(c.Request.Context(), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) movePatient(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.roster.Move(c.Request.Context(), c.Param("id"), req.Room)
	if err != nil {
		s.writeError(c, err)
		return
	}
	body := moveResponse{
		Moved:    res.Moved,
		Patient:  res.Patient,
		Occupant: res.Conflict,
		FromRoom: res.FromRoom,
		ToRoom:   res.ToRoom,
	}
	switch {
	case res.Conflict != nil:
		body.Message = fmt.Sprintf("room %s is occupied by %s", res.ToRoom, res.Conflict.Name)
		c.JSON(http.StatusConflict, body)
		return
	case res.Moved:
		body.Message = fmt.Sprintf("%s moved from room %s to room %s", res.Patient.Name, res.FromRoom, res.ToRoom)
	default:
		body.Message = fmt.Sprintf("%s is already in room %s", res.Patient.Name, res.ToRoom)
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) swapPatients(c *gin.Context) {
	var req swapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, b, err := s.roster.Swap(c.Request.Context(), c.Param("id"), req.OtherID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, swapResponse{
		Patients: [2]domain.PatientRecord{a, b},
		Message:  fmt.Sprintf("%s now in room %s, %s now in room %s", a.Name, a.Room, b.Name, b.Room),
	})
}
