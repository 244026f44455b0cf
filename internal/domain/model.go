package domain

import "time"

// Agent is a tracked staff member. BadgeCode holds the matricule printed on the
// physical badge; it is nil for agents that only punch from the dashboard.
type Agent struct {
	ID        uint    `json:"id"`
	Name      string  `json:"nom"`
	Note      string  `json:"poste"`
	BadgeCode *string `json:"matricule"`
}

// PunchEvent is an immutable presence fact. Time keeps the ISO-8601 string the
// store was given at insert; AgentID is nil for events orphaned by the legacy
// delete path.
type PunchEvent struct {
	ID       uint    `json:"id"`
	AgentID  *uint   `json:"agent_id"`
	Type     string  `json:"type"`
	Time     string  `json:"time"`
	Source   string  `json:"source"`
	Metadata *string `json:"metadata"`
}

// PunchRow is the read model behind the history view: one punch event joined
// with the owning agent's name, which is nil when no agent resolves.
type PunchRow struct {
	Time      string
	Type      string
	AgentName *string
}

// DailyRecord is the per-agent per-day reduction of punch events. Arrivee and
// Depart carry "HH:MM" or nil when the day has no event of that type; HeuresSup
// is set only when the departure runs past the overtime threshold.
type DailyRecord struct {
	Name          *string `json:"nom"`
	Date          string  `json:"date"`
	Arrivee       *string `json:"arrivee"`
	ArriveeRetard bool    `json:"arriveeRetard"`
	Depart        *string `json:"depart"`
	HeuresSup     *string `json:"heuresSup"`
}

type User struct {
	ID           uint
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type AuthSession struct {
	ID        uint
	UserID    uint
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// DeviceToken authorizes a badge device (or the CLI) to call the bearer API.
type DeviceToken struct {
	ID        uint
	UserID    uint
	Name      string
	TokenHash string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

type AuditLog struct {
	ID          uint
	ActorUserID *uint
	Action      string
	TargetType  string
	TargetID    *uint
	Metadata    string
	CreatedAt   time.Time
}

// AuditRecord is AuditLog joined with the actor's username for display.
type AuditRecord struct {
	ID            uint
	ActorUserID   *uint
	ActorUsername string
	Action        string
	TargetType    string
	TargetID      *uint
	Metadata      string
	CreatedAt     time.Time
}

type Identity struct {
	User User
}
