package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/telekom/itsmctl/pkg/apiresponses"
	"github.com/telekom/itsmctl/pkg/events"
	"github.com/telekom/itsmctl/pkg/filter"
	"github.com/telekom/itsmctl/pkg/itsmctl/client"
	"github.com/telekom/itsmctl/pkg/system"
	"github.com/telekom/itsmctl/pkg/version"
)

type ViolationList struct {
	Items    []client.SLAViolation `json:"items"`
	Total    int                   `json:"total"`
	PolledAt time.Time             `json:"polled_at"`
}

type StatsResponse struct {
	Stats       filter.ViolationStats `json:"stats"`
	PolledAt    time.Time             `json:"polled_at"`
	LastSuccess time.Time             `json:"last_success"`
	LastError   string                `json:"last_error,omitempty"`
	Polls       int                   `json:"polls"`
	Failures    int                   `json:"failures"`
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readyz(c *gin.Context) {
	snap := s.monitor.Snapshot()
	if !snap.Ready() {
		details := snap.LastError
		if details == "" {
			details = "no successful poll yet"
		}
		apiresponses.RespondServiceUnavailable(c, "sla monitor", details)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "last_success": snap.LastSuccess})
}

func (s *Server) listViolations(c *gin.Context) {
	f := filter.ViolationFilter{
		Severity: c.Query("severity"),
		Type:     c.Query("type"),
		Status:   c.Query("status"),
		Search:   c.Query("search"),
	}
	var ok bool
	if f.From, ok = parseTimeQuery(c, "from"); !ok {
		return
	}
	if f.To, ok = parseTimeQuery(c, "to"); !ok {
		return
	}

	snap := s.monitor.Snapshot()
	items := f.Apply(snap.Violations)
	apiresponses.RespondOK(c, ViolationList{Items: items, Total: len(items), PolledAt: snap.PolledAt})
}

func parseTimeQuery(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		apiresponses.RespondBadRequestWithDetails(c, "invalid "+key, "expected an RFC3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}

func (s *Server) getViolation(c *gin.Context) {
	raw := c.Param("id")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		apiresponses.RespondBadRequest(c, "violation id must be a positive integer")
		return
	}
	for _, v := range s.monitor.Snapshot().Violations {
		if v.ID == id {
			apiresponses.RespondOK(c, v)
			return
		}
	}
	system.GetReqLogger(c, s.log).Debugw("Violation not in snapshot", system.ViolationFields(id, 0)...)
	apiresponses.RespondNotFound(c, "violation", raw)
}

func (s *Server) stats(c *gin.Context) {
	snap := s.monitor.Snapshot()
	apiresponses.RespondOK(c, StatsResponse{
		Stats:       snap.Stats,
		PolledAt:    snap.PolledAt,
		LastSuccess: snap.LastSuccess,
		LastError:   snap.LastError,
		Polls:       snap.Polls,
		Failures:    snap.Failures,
	})
}

func (s *Server) sinkHealth(c *gin.Context) {
	out := make([]events.QueuedSinkHealth, 0, len(s.sinks))
	for _, r := range s.sinks {
		out = append(out, r.Health())
	}
	apiresponses.RespondOK(c, out)
}

func (s *Server) version(c *gin.Context) {
	apiresponses.RespondOK(c, version.GetBuildInfo())
}
