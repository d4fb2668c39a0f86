package httpapi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"wardroster/internal/export"
	"wardroster/pkg/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// events streams hub events as text/event-stream until the client leaves.
func (s *Server) events(c *gin.Context) {
	ch, leave := s.hub.Subscribe()
	defer leave()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(EventReady, gin.H{"deviceId": s.store.DeviceID()})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-ch:
			c.SSEvent(ev.Name, ev.Data)
			return true
		}
	})
}

func (s *Server) exportHandover(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	if q.SortBy == domain.SortNone {
		q.SortBy = domain.SortRoom
	}
	snap := s.store.Snapshot()
	now := s.nowFn()
	book, err := export.Handover(q.Apply(snap.Patients), snap.Version, now)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=consegne-%s.xlsx", now.Format("20060102-1504")))
	c.Data(http.StatusOK, xlsxContentType, book)
}
