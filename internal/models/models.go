package models

import (
	"time"

	"edumod/internal/roles"
	"edumod/internal/workflow"

	"github.com/google/uuid"
)

// MaxPriority is the ceiling for queue priority. Urgent escalations are
// pinned to it.
const MaxPriority = 100

// Status is the lifecycle state of a moderation item
type Status string

const (
	StatusPending          Status = "pending"
	StatusInReview         Status = "in_review"
	StatusApproved         Status = "approved"
	StatusFlagged          Status = "flagged"
	StatusEditSuggested    Status = "edit_suggested"
	StatusRejected         Status = "rejected"
	StatusEscalated        Status = "escalated"
	StatusPendingOversight Status = "pending_oversight"
	StatusResolved         Status = "resolved"
)

// Terminal reports whether no further transition is allowed from s
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusResolved
}

// Open reports whether the item still awaits a human decision
func (s Status) Open() bool {
	switch s {
	case StatusPending, StatusInReview, StatusEscalated, StatusPendingOversight:
		return true
	}
	return false
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInReview, StatusApproved, StatusFlagged, StatusEditSuggested,
		StatusRejected, StatusEscalated, StatusPendingOversight, StatusResolved:
		return true
	}
	return false
}

// Urgency classifies an escalation
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyUrgent Urgency = "urgent"
)

// Escalation reasons raised by the system rather than a moderator
const (
	ReasonTimeoutExceeded   = "timeout_exceeded"
	ReasonAutoRejected      = "auto_rejected"
	ReasonOversightRequired = "oversight_required"
	ReasonHighRiskClosure   = "high_risk_closure"
	ReasonSevereFlag        = "severe_flag"
)

// Escalation records why an item was raised to oversight
type Escalation struct {
	Reason      string    `json:"reason"`
	Urgency     Urgency   `json:"urgency"`
	EscalatedBy string    `json:"escalated_by"`
	EscalatedAt time.Time `json:"escalated_at"`
	Count       int       `json:"count"`
}

// Resolution records the final outcome decided by oversight
type Resolution struct {
	Outcome    Status    `json:"outcome"`
	ResolvedBy string    `json:"resolved_by"`
	ResolvedAt time.Time `json:"resolved_at"`
	Overrode   bool      `json:"overrode"`
	Notes      string    `json:"notes,omitempty"`
}

// ModerationItem is one piece of content under review
type ModerationItem struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	ContentID        string        `json:"content_id" db:"content_id"`
	ContentType      string        `json:"content_type" db:"content_type"`
	Category         string        `json:"category,omitempty" db:"category"`
	AuthorRef        string        `json:"author_ref,omitempty" db:"author_ref"`
	Body             string        `json:"body" db:"body"`
	SealedOriginal   string        `json:"-" db:"sealed_original"`
	PrivacyScore     float64       `json:"privacy_score" db:"privacy_score"`
	EducationalScore float64       `json:"educational_score" db:"educational_score"`
	QualityScore     float64       `json:"quality_score" db:"quality_score"`
	RiskScore        float64       `json:"risk_score" db:"risk_score"`
	Priority         int           `json:"priority" db:"priority"`
	Status           Status        `json:"status" db:"status"`
	ProposedStatus   Status        `json:"proposed_status,omitempty" db:"proposed_status"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
	AssignedTo       *string       `json:"assigned_to,omitempty" db:"assigned_to"`
	AssignedAt       *time.Time    `json:"assigned_at,omitempty" db:"assigned_at"`
	ReviewDeadline   *time.Time    `json:"review_deadline,omitempty" db:"review_deadline"`
	WorkflowType     workflow.Type `json:"workflow_type" db:"workflow_type"`
	Flags            []string      `json:"flags" db:"flags"`
	EducationalNotes []string      `json:"educational_notes,omitempty" db:"educational_notes"`
	SuggestedEdit    string        `json:"suggested_edit,omitempty" db:"suggested_edit"`
	Escalation       *Escalation   `json:"escalation,omitempty" db:"escalation"`
	Resolution       *Resolution   `json:"resolution,omitempty" db:"resolution"`
	PreviousItemID   *uuid.UUID    `json:"previous_item_id,omitempty" db:"previous_item_id"`
	PatternVersion   string        `json:"pattern_version" db:"pattern_version"`
	AuditSample      bool          `json:"audit_sample" db:"audit_sample"`
	Version          int64         `json:"version" db:"version"`
}

// IsAssigned reports whether the item is held by a moderator
func (i *ModerationItem) IsAssigned() bool {
	return i.AssignedTo != nil && *i.AssignedTo != ""
}

// AssignedToModerator reports whether the item is held by the given moderator
func (i *ModerationItem) AssignedToModerator(moderatorID string) bool {
	return i.IsAssigned() && *i.AssignedTo == moderatorID
}

// ClearAssignment drops the assignee and deadline
func (i *ModerationItem) ClearAssignment() {
	i.AssignedTo = nil
	i.AssignedAt = nil
	i.ReviewDeadline = nil
}

// Clone returns a deep copy so callers can mutate without touching shared state
func (i *ModerationItem) Clone() *ModerationItem {
	c := *i
	c.Flags = append([]string(nil), i.Flags...)
	c.EducationalNotes = append([]string(nil), i.EducationalNotes...)
	if i.AssignedTo != nil {
		v := *i.AssignedTo
		c.AssignedTo = &v
	}
	if i.AssignedAt != nil {
		v := *i.AssignedAt
		c.AssignedAt = &v
	}
	if i.ReviewDeadline != nil {
		v := *i.ReviewDeadline
		c.ReviewDeadline = &v
	}
	if i.Escalation != nil {
		v := *i.Escalation
		c.Escalation = &v
	}
	if i.Resolution != nil {
		v := *i.Resolution
		c.Resolution = &v
	}
	if i.PreviousItemID != nil {
		v := *i.PreviousItemID
		c.PreviousItemID = &v
	}
	return &c
}

// ModeratorStats counts decisions made by a moderator
type ModeratorStats struct {
	Claimed   int `json:"claimed" db:"claimed"`
	Approved  int `json:"approved" db:"approved"`
	Flagged   int `json:"flagged" db:"flagged"`
	Edited    int `json:"edited" db:"edited"`
	Rejected  int `json:"rejected" db:"rejected"`
	Escalated int `json:"escalated" db:"escalated"`
	Resolved  int `json:"resolved" db:"resolved"`
}

// Record increments the counter matching an action kind. It reports false
// for kinds that are not counted.
func (s *ModeratorStats) Record(kind ActionKind) bool {
	switch kind {
	case ActionClaim:
		s.Claimed++
	case ActionApprove:
		s.Approved++
	case ActionFlag:
		s.Flagged++
	case ActionSuggestEdit:
		s.Edited++
	case ActionReject:
		s.Rejected++
	case ActionEscalate:
		s.Escalated++
	case ActionOversightResolve:
		s.Resolved++
	default:
		return false
	}
	return true
}

// Moderator is a human reviewer with a tier
type Moderator struct {
	ID                string         `json:"id" db:"id"`
	Name              string         `json:"name" db:"name"`
	Tier              roles.Tier     `json:"tier" db:"tier"`
	MaxRiskLevel      float64        `json:"max_risk_level" db:"max_risk_level"`
	RequiresOversight bool           `json:"requires_oversight" db:"requires_oversight"`
	Active            bool           `json:"active" db:"active"`
	Stats             ModeratorStats `json:"stats" db:"stats"`
	LastActiveAt      *time.Time     `json:"last_active_at,omitempty" db:"last_active_at"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// NewModerator builds a moderator whose limits come from the tier's role
func NewModerator(id, name string, tier roles.Tier, registry *roles.Registry) (*Moderator, bool) {
	role, ok := registry.Lookup(tier)
	if !ok {
		return nil, false
	}
	now := time.Now().UTC()
	return &Moderator{
		ID:                id,
		Name:              name,
		Tier:              tier,
		MaxRiskLevel:      role.MaxRiskLevel,
		RequiresOversight: role.RequiresOversight,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, true
}

// ActionKind names an audited queue operation
type ActionKind string

const (
	ActionSubmit           ActionKind = "submit"
	ActionClaim            ActionKind = "claim"
	ActionRelease          ActionKind = "release"
	ActionApprove          ActionKind = "approve"
	ActionFlag             ActionKind = "flag"
	ActionSuggestEdit      ActionKind = "suggest_edit"
	ActionReject           ActionKind = "reject"
	ActionEscalate         ActionKind = "escalate"
	ActionOversightResolve ActionKind = "oversight_resolve"
	ActionTimeout          ActionKind = "timeout"
	ActionRevealOriginal   ActionKind = "reveal_original"
	ActionResubmit         ActionKind = "resubmit"
)

// SystemActor is recorded as moderator for automatic transitions
const SystemActor = "system"

// ModerationAction is one append-only audit record
type ModerationAction struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	ItemID      uuid.UUID  `json:"item_id" db:"item_id"`
	ModeratorID string     `json:"moderator_id" db:"moderator_id"`
	Kind        ActionKind `json:"action" db:"kind"`
	Reason      string     `json:"reason,omitempty" db:"reason"`
	Notes       string     `json:"notes,omitempty" db:"notes"`
	Timestamp   time.Time  `json:"timestamp" db:"timestamp"`
	RiskScore   float64    `json:"risk_score" db:"risk_score"`
	FromStatus  Status     `json:"from_status,omitempty" db:"from_status"`
	ToStatus    Status     `json:"to_status" db:"to_status"`
}

// NewAction creates an audit record for an item transition
func NewAction(item *ModerationItem, moderatorID string, kind ActionKind, from Status, at time.Time) ModerationAction {
	return ModerationAction{
		ID:          uuid.New(),
		ItemID:      item.ID,
		ModeratorID: moderatorID,
		Kind:        kind,
		Timestamp:   at,
		RiskScore:   item.RiskScore,
		FromStatus:  from,
		ToStatus:    item.Status,
	}
}

// ItemQuery filters and pages queue listings
type ItemQuery struct {
	Statuses     []Status
	MaxRisk      *float64
	AssignedTo   string
	WorkflowType workflow.Type
	Limit        int
	Offset       int
}

// QueueStats summarizes the queue
type QueueStats struct {
	ByStatus       map[Status]int        `json:"by_status"`
	ByWorkflow     map[workflow.Type]int `json:"by_workflow"`
	Overdue        int                   `json:"overdue"`
	OpenEscalation int                   `json:"open_escalations"`
	Total          int                   `json:"total"`
}
