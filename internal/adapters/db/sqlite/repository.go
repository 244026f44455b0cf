package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/scorpionhol/pointage/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

type AttendanceRepository struct {
	db *gorm.DB
}

func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{})
}

func NewAttendanceRepository(db *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func agentFromModel(m AgentModel) domain.Agent {
	return domain.Agent{ID: m.ID, Name: m.Name, Note: m.Note, BadgeCode: m.Matricule}
}

func (r *AttendanceRepository) CreateAgent(ctx context.Context, value domain.Agent) (domain.Agent, error) {
	m := AgentModel{Name: value.Name, Note: value.Note, Matricule: value.BadgeCode}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Agent{}, err
	}
	return agentFromModel(m), nil
}

func (r *AttendanceRepository) ListAgents(ctx context.Context, query string, limit int) ([]domain.Agent, error) {
	q := r.db.WithContext(ctx).Model(&AgentModel{})
	if strings.TrimSpace(query) != "" {
		like := "%" + strings.TrimSpace(query) + "%"
		q = q.Where("name LIKE ?", like)
	}
	rows := make([]AgentModel, 0)
	if err := q.Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Agent, 0, len(rows))
	for _, m := range rows {
		result = append(result, agentFromModel(m))
	}
	return result, nil
}

func (r *AttendanceRepository) FindAgentByBadgeCode(ctx context.Context, code string) (domain.Agent, error) {
	var m AgentModel
	if err := r.db.WithContext(ctx).Where("matricule = ?", code).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Agent{}, domain.ErrAgentNotFound
		}
		return domain.Agent{}, err
	}
	return agentFromModel(m), nil
}

func (r *AttendanceRepository) FindAgentByID(ctx context.Context, id uint) (domain.Agent, error) {
	var m AgentModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Agent{}, domain.ErrAgentNotFound
		}
		return domain.Agent{}, err
	}
	return agentFromModel(m), nil
}

// DeleteAgent removes the agent and every punch event it owns in one
// transaction, so the log never keeps rows for a half-deleted agent.
func (r *AttendanceRepository) DeleteAgent(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("agent_id = ?", id).Delete(&PunchEventModel{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&AgentModel{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrAgentNotFound
		}
		return nil
	})
}

func (r *AttendanceRepository) CreatePunchEvent(ctx context.Context, value domain.PunchEvent) (domain.PunchEvent, error) {
	m := PunchEventModel{
		AgentID:  value.AgentID,
		Type:     value.Type,
		Time:     value.Time,
		Source:   value.Source,
		Metadata: value.Metadata,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.PunchEvent{}, err
	}
	return domain.PunchEvent{
		ID:       m.ID,
		AgentID:  m.AgentID,
		Type:     m.Type,
		Time:     m.Time,
		Source:   m.Source,
		Metadata: m.Metadata,
	}, nil
}

// ListPunchRows feeds the history aggregator: every punch event joined with
// its agent's name, newest first. The name filter keeps SQL LIKE semantics,
// which in SQLite means ASCII case-insensitive matching.
func (r *AttendanceRepository) ListPunchRows(ctx context.Context, nameFilter string) ([]domain.PunchRow, error) {
	type row struct {
		Time      string
		Type      string
		AgentName *string
	}

	q := `
SELECT p.time,
       p.type,
       a.name AS agent_name
FROM presences p
LEFT JOIN agents a ON a.id = p.agent_id
`
	args := make([]any, 0, 1)
	if nameFilter != "" {
		q += "WHERE a.name LIKE ?\n"
		args = append(args, "%"+nameFilter+"%")
	}
	q += "ORDER BY p.time DESC"

	rows := make([]row, 0)
	if err := r.db.WithContext(ctx).Raw(q, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.PunchRow, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.PunchRow{Time: m.Time, Type: m.Type, AgentName: m.AgentName})
	}
	return result, nil
}

func (r *AttendanceRepository) ListPunchEventsByAgent(ctx context.Context, agentID uint, limit int) ([]domain.PunchEvent, error) {
	rows := make([]PunchEventModel, 0)
	if err := r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("time DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.PunchEvent, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.PunchEvent{
			ID:       m.ID,
			AgentID:  m.AgentID,
			Type:     m.Type,
			Time:     m.Time,
			Source:   m.Source,
			Metadata: m.Metadata,
		})
	}
	return result, nil
}

func (r *AttendanceRepository) CreateUser(ctx context.Context, value domain.User) (domain.User, error) {
	m := UserModel{Username: strings.TrimSpace(value.Username), PasswordHash: value.PasswordHash}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: m.ID, Username: m.Username, PasswordHash: m.PasswordHash, CreatedAt: m.CreatedAt}, nil
}

func (r *AttendanceRepository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&UserModel{}).Count(&count).Error
	return count, err
}

func (r *AttendanceRepository) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	return domain.User{ID: m.ID, Username: m.Username, PasswordHash: m.PasswordHash, CreatedAt: m.CreatedAt}, nil
}

func (r *AttendanceRepository) GetUserByID(ctx context.Context, id uint) (domain.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	return domain.User{ID: m.ID, Username: m.Username, PasswordHash: m.PasswordHash, CreatedAt: m.CreatedAt}, nil
}

func (r *AttendanceRepository) CreateSession(ctx context.Context, value domain.AuthSession) (domain.AuthSession, error) {
	m := SessionModel{UserID: value.UserID, TokenHash: value.TokenHash, ExpiresAt: value.ExpiresAt}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.AuthSession{}, err
	}
	return domain.AuthSession{ID: m.ID, UserID: m.UserID, TokenHash: m.TokenHash, ExpiresAt: m.ExpiresAt, CreatedAt: m.CreatedAt}, nil
}

func (r *AttendanceRepository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (domain.AuthSession, error) {
	var m SessionModel
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AuthSession{}, domain.ErrNotFound
		}
		return domain.AuthSession{}, err
	}
	return domain.AuthSession{ID: m.ID, UserID: m.UserID, TokenHash: m.TokenHash, ExpiresAt: m.ExpiresAt, CreatedAt: m.CreatedAt}, nil
}

func (r *AttendanceRepository) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	return r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&SessionModel{}).Error
}

func (r *AttendanceRepository) CreateDeviceToken(ctx context.Context, value domain.DeviceToken) (domain.DeviceToken, error) {
	m := DeviceTokenModel{UserID: value.UserID, Name: value.Name, TokenHash: value.TokenHash, ExpiresAt: value.ExpiresAt}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.DeviceToken{}, err
	}
	return domain.DeviceToken{ID: m.ID, UserID: m.UserID, Name: m.Name, TokenHash: m.TokenHash, ExpiresAt: m.ExpiresAt, CreatedAt: m.CreatedAt}, nil
}

func (r *AttendanceRepository) GetDeviceTokenByTokenHash(ctx context.Context, tokenHash string) (domain.DeviceToken, error) {
	var m DeviceTokenModel
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.DeviceToken{}, domain.ErrNotFound
		}
		return domain.DeviceToken{}, err
	}
	return domain.DeviceToken{ID: m.ID, UserID: m.UserID, Name: m.Name, TokenHash: m.TokenHash, ExpiresAt: m.ExpiresAt, CreatedAt: m.CreatedAt}, nil
}

func (r *AttendanceRepository) CreateAuditLog(ctx context.Context, value domain.AuditLog) error {
	m := AuditLogModel{ActorUserID: value.ActorUserID, Action: value.Action, TargetType: value.TargetType, TargetID: value.TargetID, Metadata: value.Metadata}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *AttendanceRepository) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	type row struct {
		ID            uint
		ActorUserID   *uint
		ActorUsername string
		Action        string
		TargetType    string
		TargetID      *uint
		Metadata      string
		CreatedAt     time.Time
	}
	rows := make([]row, 0)
	err := r.db.WithContext(ctx).Raw(`
SELECT l.id,
       l.actor_user_id,
       COALESCE(u.username, '') AS actor_username,
       l.action,
       l.target_type,
       l.target_id,
       l.metadata,
       l.created_at
FROM audit_logs l
LEFT JOIN users u ON u.id = l.actor_user_id
ORDER BY l.id DESC
LIMIT ?
`, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make([]domain.AuditRecord, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.AuditRecord{
			ID:            m.ID,
			ActorUserID:   m.ActorUserID,
			ActorUsername: m.ActorUsername,
			Action:        m.Action,
			TargetType:    m.TargetType,
			TargetID:      m.TargetID,
			Metadata:      m.Metadata,
			CreatedAt:     m.CreatedAt,
		})
	}
	return result, nil
}
