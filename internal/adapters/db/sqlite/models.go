package sqlite

import "time"

// Column names mirror the historical schema: agents carry name/note/matricule,
// presences keep their timestamp as ISO-8601 text.

type AgentModel struct {
	ID        uint    `gorm:"primaryKey"`
	Name      string  `gorm:"column:name;not null;index"`
	Note      string  `gorm:"column:note;not null"`
	Matricule *string `gorm:"column:matricule;uniqueIndex"`
}

func (AgentModel) TableName() string { return "agents" }

type PunchEventModel struct {
	ID       uint    `gorm:"primaryKey"`
	AgentID  *uint   `gorm:"column:agent_id;index"`
	Type     string  `gorm:"column:type;not null"`
	Time     string  `gorm:"column:time;not null;index"`
	Source   string  `gorm:"column:source;not null"`
	Metadata *string `gorm:"column:metadata"`
}

func (PunchEventModel) TableName() string { return "presences" }

type UserModel struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

func (UserModel) TableName() string { return "users" }

type SessionModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;index"`
	TokenHash string `gorm:"not null;uniqueIndex"`
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (SessionModel) TableName() string { return "sessions" }

type DeviceTokenModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	TokenHash string `gorm:"not null;uniqueIndex"`
	ExpiresAt *time.Time
	CreatedAt time.Time
}

func (DeviceTokenModel) TableName() string { return "device_tokens" }

type AuditLogModel struct {
	ID          uint `gorm:"primaryKey"`
	ActorUserID *uint
	Action      string `gorm:"not null;index"`
	TargetType  string `gorm:"not null;index"`
	TargetID    *uint
	Metadata    string
	CreatedAt   time.Time
}

func (AuditLogModel) TableName() string { return "audit_logs" }
