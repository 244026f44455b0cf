package domain

import "context"

type AttendanceRepository interface {
	CreateAgent(ctx context.Context, value Agent) (Agent, error)
	ListAgents(ctx context.Context, query string, limit int) ([]Agent, error)
	FindAgentByBadgeCode(ctx context.Context, code string) (Agent, error)
	FindAgentByID(ctx context.Context, id uint) (Agent, error)
	DeleteAgent(ctx context.Context, id uint) error

	CreatePunchEvent(ctx context.Context, value PunchEvent) (PunchEvent, error)
	ListPunchRows(ctx context.Context, nameFilter string) ([]PunchRow, error)
	ListPunchEventsByAgent(ctx context.Context, agentID uint, limit int) ([]PunchEvent, error)

	CreateUser(ctx context.Context, value User) (User, error)
	CountUsers(ctx context.Context) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByID(ctx context.Context, id uint) (User, error)
	CreateSession(ctx context.Context, value AuthSession) (AuthSession, error)
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (AuthSession, error)
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	CreateDeviceToken(ctx context.Context, value DeviceToken) (DeviceToken, error)
	GetDeviceTokenByTokenHash(ctx context.Context, tokenHash string) (DeviceToken, error)

	CreateAuditLog(ctx context.Context, value AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]AuditRecord, error)
}
