package client

// Priority is shared by tickets, incidents and SLA definitions.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank orders priorities from 1 (low) to 4 (critical); unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

type TicketStatus string

const (
	TicketStatusNew             TicketStatus = "new"
	TicketStatusOpen            TicketStatus = "open"
	TicketStatusInProgress      TicketStatus = "in_progress"
	TicketStatusPending         TicketStatus = "pending"
	TicketStatusPendingApproval TicketStatus = "pending_approval"
	TicketStatusResolved        TicketStatus = "resolved"
	TicketStatusClosed          TicketStatus = "closed"
	TicketStatusCancelled       TicketStatus = "cancelled"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusOpen, TicketStatusInProgress, TicketStatusPending,
		TicketStatusPendingApproval, TicketStatusResolved, TicketStatusClosed, TicketStatusCancelled:
		return true
	}
	return false
}

type IncidentStatus string

const (
	IncidentStatusNew        IncidentStatus = "new"
	IncidentStatusInProgress IncidentStatus = "in_progress"
	IncidentStatusResolved   IncidentStatus = "resolved"
	IncidentStatusClosed     IncidentStatus = "closed"
	IncidentStatusCancelled  IncidentStatus = "cancelled"
)

func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentStatusNew, IncidentStatusInProgress, IncidentStatusResolved, IncidentStatusClosed, IncidentStatusCancelled:
		return true
	}
	return false
}

type IncidentSource string

const (
	IncidentSourceEmail      IncidentSource = "email"
	IncidentSourcePhone      IncidentSource = "phone"
	IncidentSourceWeb        IncidentSource = "web"
	IncidentSourceAPI        IncidentSource = "api"
	IncidentSourceMonitoring IncidentSource = "monitoring"
	IncidentSourceChat       IncidentSource = "chat"
)

func (s IncidentSource) Valid() bool {
	switch s {
	case IncidentSourceEmail, IncidentSourcePhone, IncidentSourceWeb, IncidentSourceAPI, IncidentSourceMonitoring, IncidentSourceChat:
		return true
	}
	return false
}

type IncidentType string

const (
	IncidentTypeHardware IncidentType = "hardware"
	IncidentTypeSoftware IncidentType = "software"
	IncidentTypeNetwork  IncidentType = "network"
	IncidentTypeSecurity IncidentType = "security"
	IncidentTypeAccess   IncidentType = "access"
	IncidentTypeOther    IncidentType = "other"
)

func (t IncidentType) Valid() bool {
	switch t {
	case IncidentTypeHardware, IncidentTypeSoftware, IncidentTypeNetwork, IncidentTypeSecurity, IncidentTypeAccess, IncidentTypeOther:
		return true
	}
	return false
}

// Severity is the P1 (critical) to P4 (low) incident scale.
type Severity string

const (
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
	SeverityP4 Severity = "P4"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityP1, SeverityP2, SeverityP3, SeverityP4:
		return true
	}
	return false
}

type CIStatus string

const (
	CIStatusActive      CIStatus = "active"
	CIStatusInactive    CIStatus = "inactive"
	CIStatusRetired     CIStatus = "retired"
	CIStatusMaintenance CIStatus = "maintenance"
)

func (s CIStatus) Valid() bool {
	switch s {
	case CIStatusActive, CIStatusInactive, CIStatusRetired, CIStatusMaintenance:
		return true
	}
	return false
}

type SLAStatus string

const (
	SLAStatusActive    SLAStatus = "active"
	SLAStatusBreached  SLAStatus = "breached"
	SLAStatusCompleted SLAStatus = "completed"
	SLAStatusPaused    SLAStatus = "paused"
)

func (s SLAStatus) Valid() bool {
	switch s {
	case SLAStatusActive, SLAStatusBreached, SLAStatusCompleted, SLAStatusPaused:
		return true
	}
	return false
}

type ViolationSeverity string

const (
	ViolationSeverityLow      ViolationSeverity = "low"
	ViolationSeverityMedium   ViolationSeverity = "medium"
	ViolationSeverityHigh     ViolationSeverity = "high"
	ViolationSeverityCritical ViolationSeverity = "critical"
)

func (s ViolationSeverity) Valid() bool {
	switch s {
	case ViolationSeverityLow, ViolationSeverityMedium, ViolationSeverityHigh, ViolationSeverityCritical:
		return true
	}
	return false
}

// Scale maps the severity onto the P1..P4 scale used by escalation rules.
func (s ViolationSeverity) Scale() Severity {
	switch s {
	case ViolationSeverityCritical:
		return SeverityP1
	case ViolationSeverityHigh:
		return SeverityP2
	case ViolationSeverityMedium:
		return SeverityP3
	default:
		return SeverityP4
	}
}

type CatalogStatus string

const (
	CatalogStatusEnabled  CatalogStatus = "enabled"
	CatalogStatusDisabled CatalogStatus = "disabled"
)

func (s CatalogStatus) Valid() bool {
	return s == CatalogStatusEnabled || s == CatalogStatusDisabled
}
