package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Project struct {
	ID          string
	Name        string
	Slug        string
	Description string
	Status      string
	CreatedBy   string
	UpdatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Membership binds a user to a project role and, optionally, to the graph
// node that represents them there.
type Membership struct {
	ProjectID string
	UserID    string
	Role      string
	NodeID    string
	CreatedAt time.Time
}

// PolicyVersion is one compiled project configuration. Exactly one version
// per project may be active at a time.
type PolicyVersion struct {
	ID            string
	ProjectID     string
	Version       int
	Status        string // draft, active, archived
	Config        string // compiled configuration JSON
	CompiledBy    string
	CompiledAt    time.Time
	PublishedAt   *time.Time
	EffectiveFrom *time.Time
	CommitHash    string
}

// GraphNodeRow is the searchable index entry for one graph node.
type GraphNodeRow struct {
	ProjectID string
	NodeID    string
	NodeType  string
	Label     string
	Role      string
	UpdatedAt time.Time
}

type TimesheetEntry struct {
	ID          string
	ProjectID   string
	ContractID  string
	UserID      string
	NodeID      string
	WorkDate    time.Time
	Hours       float64
	Note        string
	Status      string // draft, submitted, approved, rejected
	CurrentStep int
	SubmittedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ApprovalAction records one approve/reject decision against an entry.
// Rows are append-only; corrections happen by adding new rows.
type ApprovalAction struct {
	ID        int64
	EntryID   string
	StepOrder int
	PartyID   string
	ActorID   string
	ActorName string
	Decision  string // approved, rejected
	Comment   string
	CreatedAt time.Time
}

type AuditEvent struct {
	ID        int64
	EventType string
	ActorName string
	ProjectID string
	EntryID   *string
	VersionID *string
	Payload   map[string]any
	CreatedAt time.Time
}
