// Package filter narrows lists already fetched from the backend and
// computes the summary counters shown above them. Nothing here performs I/O.
package filter

import (
	"strconv"
	"strings"
	"time"

	"github.com/telekom/itsmctl/pkg/escalation"
	"github.com/telekom/itsmctl/pkg/itsmctl/client"
)

// Any is the selector value that disables a filter, next to the empty string.
const Any = "all"

// Apply returns the items accepted by every predicate. The input is not modified.
func Apply[T any](items []T, preds ...func(T) bool) []T {
	out := make([]T, 0, len(items))
next:
	for _, item := range items {
		for _, p := range preds {
			if !p(item) {
				continue next
			}
		}
		out = append(out, item)
	}
	return out
}

// ContainsFold reports whether any field contains needle, ignoring case. An
// empty needle matches everything.
func ContainsFold(needle string, fields ...string) bool {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func selected(sel, value string) bool {
	return sel == "" || sel == Any || strings.EqualFold(sel, value)
}

type ViolationFilter struct {
	Severity string
	Type     string
	Status   string
	// From and To bound created_at exclusively; zero values are open.
	From   time.Time
	To     time.Time
	Search string
}

func (f ViolationFilter) Match(v client.SLAViolation) bool {
	if !selected(f.Severity, string(v.Severity)) || !selected(f.Type, v.ViolationType) || !selected(f.Status, v.State()) {
		return false
	}
	if !f.From.IsZero() && !v.CreatedAt.After(f.From) {
		return false
	}
	if !f.To.IsZero() && !v.CreatedAt.Before(f.To) {
		return false
	}
	return ContainsFold(f.Search, strconv.Itoa(v.TicketID), v.ViolationType, v.Description)
}

func (f ViolationFilter) Apply(items []client.SLAViolation) []client.SLAViolation {
	return Apply(items, f.Match)
}

type ViolationStats struct {
	Total    int `json:"total"`
	Open     int `json:"open"`
	Resolved int `json:"resolved"`
	Critical int `json:"critical"`
}

func CountViolations(items []client.SLAViolation) ViolationStats {
	s := ViolationStats{Total: len(items)}
	for _, v := range items {
		switch v.State() {
		case client.ViolationStatusOpen:
			s.Open++
		case client.ViolationStatusResolved:
			s.Resolved++
		}
		if v.Severity == client.ViolationSeverityCritical {
			s.Critical++
		}
	}
	return s
}

type TicketFilter struct {
	Keyword  string
	Status   string
	Priority string
}

func (f TicketFilter) Match(t client.Ticket) bool {
	return selected(f.Status, string(t.Status)) &&
		selected(f.Priority, string(t.Priority)) &&
		ContainsFold(f.Keyword, t.Title, t.Description, t.TicketNumber)
}

func (f TicketFilter) Apply(items []client.Ticket) []client.Ticket {
	return Apply(items, f.Match)
}

type CatalogFilter struct {
	Search   string
	Category string
	Status   string
}

func (f CatalogFilter) Match(item client.ServiceItem) bool {
	return selected(f.Category, item.Category) &&
		selected(f.Status, string(item.Status)) &&
		ContainsFold(f.Search, item.Name, item.Description, item.Category)
}

func (f CatalogFilter) Apply(items []client.ServiceItem) []client.ServiceItem {
	return Apply(items, f.Match)
}

type CIFilter struct {
	Search string
	Type   string
	Status string
}

func (f CIFilter) Match(ci client.ConfigurationItem) bool {
	return selected(f.Type, ci.Type) &&
		selected(f.Status, string(ci.Status)) &&
		ContainsFold(f.Search, ci.Name, ci.Description, ci.Hostname, ci.IPAddress, ci.SerialNumber)
}

func (f CIFilter) Apply(items []client.ConfigurationItem) []client.ConfigurationItem {
	return Apply(items, f.Match)
}

// CIStats counts configuration items per status and per type.
type CIStats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	ByType   map[string]int `json:"by_type"`
}

func CountCIs(items []client.ConfigurationItem) CIStats {
	s := CIStats{Total: len(items), ByStatus: map[string]int{}, ByType: map[string]int{}}
	for _, ci := range items {
		s.ByStatus[string(ci.Status)]++
		typ := ci.Type
		if typ == "" {
			typ = "unknown"
		}
		s.ByType[typ]++
	}
	return s
}

type IncidentFilter struct {
	Search    string
	Status    string
	Priority  string
	MajorOnly bool
}

func (f IncidentFilter) Match(i client.Incident) bool {
	if f.MajorOnly && !i.IsMajorIncident {
		return false
	}
	return selected(f.Status, string(i.Status)) &&
		selected(f.Priority, string(i.Priority)) &&
		ContainsFold(f.Search, i.Title, i.Description, i.IncidentNumber)
}

func (f IncidentFilter) Apply(items []client.Incident) []client.Incident {
	return Apply(items, f.Match)
}

type EscalationRuleFilter struct {
	Search   string
	Status   string
	Priority string
}

func (f EscalationRuleFilter) Match(r escalation.Rule) bool {
	return selected(f.Status, string(r.Status)) &&
		selected(f.Priority, string(r.Priority)) &&
		ContainsFold(f.Search, r.Name, r.Description, r.ServiceType)
}

func (f EscalationRuleFilter) Apply(items []escalation.Rule) []escalation.Rule {
	return Apply(items, f.Match)
}

type EscalationRuleStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Draft    int `json:"draft"`
	Inactive int `json:"inactive"`
}

func CountEscalationRules(items []escalation.Rule) EscalationRuleStats {
	s := EscalationRuleStats{Total: len(items)}
	for _, r := range items {
		switch r.Status {
		case escalation.StatusActive:
			s.Active++
		case escalation.StatusDraft:
			s.Draft++
		case escalation.StatusInactive:
			s.Inactive++
		}
	}
	return s
}
