package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wardroster/internal/syncengine"
	"wardroster/pkg/domain"
)

type errorResponse struct {
	Error    string                `json:"error"`
	Field    string                `json:"field,omitempty"`
	Occupant *domain.PatientRecord `json:"occupant,omitempty"`
}

// writeError maps domain and sync errors onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		verr domain.ValidationError
		nerr domain.NotFoundError
		ierr domain.InvalidOperationError
		terr domain.TransportError
		serr domain.SerializationError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Field: verr.Field, Occupant: verr.Conflict})
	case errors.As(err, &nerr):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &ierr):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, syncengine.ErrCycleInFlight), errors.Is(err, syncengine.ErrNoConflict):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &terr), errors.As(err, &serr):
		s.logger.Warn("remote operation failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("unhandled request error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}
