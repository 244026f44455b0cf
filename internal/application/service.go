package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/scorpionhol/pointage/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// Punch source labels, one per channel.
const (
	SourceDashboard    = "dashboard"
	SourceVirtualBadge = "badgeuse_virtuelle"
	SourceBadgeAPI     = "badgeuse_api"
	SourceRPC          = "rpc"
)

type AttendanceService struct {
	repo domain.AttendanceRepository
	now  func() time.Time
}

func NewAttendanceService(repo domain.AttendanceRepository) *AttendanceService {
	return &AttendanceService{repo: repo, now: time.Now}
}

// RecordPunch resolves badgeCode to an agent and appends one punch event.
// Resolution tries the matricule first, then the decimal agent id. The event
// timestamp is the server clock at insert; callers never supply it. Two
// identical calls append two events.
func (s *AttendanceService) RecordPunch(ctx context.Context, badgeCode, punchType, source string) (domain.Agent, error) {
	badgeCode = strings.TrimSpace(badgeCode)
	if badgeCode == "" {
		return domain.Agent{}, domain.ErrBadgeRequired
	}

	agent, err := s.repo.FindAgentByBadgeCode(ctx, badgeCode)
	if errors.Is(err, domain.ErrAgentNotFound) {
		id, parseErr := strconv.ParseUint(badgeCode, 10, 64)
		if parseErr != nil {
			return domain.Agent{}, domain.ErrAgentNotFound
		}
		agent, err = s.repo.FindAgentByID(ctx, uint(id))
	}
	if err != nil {
		return domain.Agent{}, err
	}

	if strings.TrimSpace(punchType) == "" {
		punchType = "badge"
	}

	_, err = s.repo.CreatePunchEvent(ctx, domain.PunchEvent{
		AgentID: &agent.ID,
		Type:    punchType,
		Time:    s.now().UTC().Format(time.RFC3339),
		Source:  source,
	})
	if err != nil {
		return domain.Agent{}, fmt.Errorf("record punch: %w", err)
	}
	return agent, nil
}

// RecordDashboardPunch is the one-click variant: the dashboard always sends
// the agent id, type "pointage", source "dashboard".
func (s *AttendanceService) RecordDashboardPunch(ctx context.Context, agentID uint) (domain.Agent, error) {
	return s.RecordPunch(ctx, strconv.FormatUint(uint64(agentID), 10), "pointage", SourceDashboard)
}

// BuildHistory reduces the punch log to one DailyRecord per (agent, day).
func (s *AttendanceService) BuildHistory(ctx context.Context, nameFilter string) ([]domain.DailyRecord, error) {
	rows, err := s.repo.ListPunchRows(ctx, strings.TrimSpace(nameFilter))
	if err != nil {
		return nil, fmt.Errorf("load punch rows: %w", err)
	}
	return AggregateHistory(rows), nil
}

func (s *AttendanceService) CreateAgent(ctx context.Context, name, note string, badgeCode *string) (domain.Agent, error) {
	name = strings.TrimSpace(name)
	note = strings.TrimSpace(note)
	if name == "" || note == "" {
		return domain.Agent{}, domain.ErrAgentFieldsRequired
	}
	if badgeCode != nil {
		trimmed := strings.TrimSpace(*badgeCode)
		if trimmed == "" {
			badgeCode = nil
		} else {
			badgeCode = &trimmed
		}
	}
	agent, err := s.repo.CreateAgent(ctx, domain.Agent{Name: name, Note: note, BadgeCode: badgeCode})
	if err != nil {
		return domain.Agent{}, fmt.Errorf("create agent: %w", err)
	}
	return agent, nil
}

func (s *AttendanceService) ListAgents(ctx context.Context, query string, limit int) ([]domain.Agent, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}
	return s.repo.ListAgents(ctx, query, limit)
}

func (s *AttendanceService) GetAgent(ctx context.Context, id uint) (domain.Agent, error) {
	return s.repo.FindAgentByID(ctx, id)
}

// DeleteAgent removes the agent together with its punch events.
func (s *AttendanceService) DeleteAgent(ctx context.Context, id uint) error {
	if id == 0 {
		return domain.ErrAgentNotFound
	}
	return s.repo.DeleteAgent(ctx, id)
}

func (s *AttendanceService) ListAgentPunches(ctx context.Context, agentID uint, limit int) ([]domain.PunchEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListPunchEventsByAgent(ctx, agentID, limit)
}

// BootstrapAdmin creates the initial administrator when the users table is
// empty. Subsequent starts leave existing credentials alone.
func (s *AttendanceService) BootstrapAdmin(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return errors.New("bootstrap admin username and password are required")
	}

	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	u, err := s.repo.CreateUser(ctx, domain.User{Username: strings.TrimSpace(username), PasswordHash: hash})
	if err != nil {
		return err
	}

	return s.repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: &u.ID, Action: "auth.bootstrap_admin", TargetType: "user", TargetID: &u.ID, Metadata: "initial admin created"})
}

func (s *AttendanceService) LoginWithSession(ctx context.Context, username, password string, ttl time.Duration) (domain.User, string, error) {
	u, err := s.authenticate(ctx, username, password)
	if err != nil {
		return domain.User{}, "", err
	}

	plain, hash, err := newTokenPair()
	if err != nil {
		return domain.User{}, "", err
	}

	_, err = s.repo.CreateSession(ctx, domain.AuthSession{
		UserID:    u.ID,
		TokenHash: hash,
		ExpiresAt: s.now().UTC().Add(ttl),
	})
	if err != nil {
		return domain.User{}, "", err
	}

	_ = s.repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: &u.ID, Action: "auth.login.session", TargetType: "user", TargetID: &u.ID, Metadata: "session login"})
	return u, plain, nil
}

// IssueDeviceToken authenticates the admin and mints a long-lived bearer token
// for a badge device or the CLI. Only the SHA-256 of the token is stored.
func (s *AttendanceService) IssueDeviceToken(ctx context.Context, username, password, tokenName string, ttl *time.Duration) (domain.User, string, error) {
	u, err := s.authenticate(ctx, username, password)
	if err != nil {
		return domain.User{}, "", err
	}

	plain, hash, err := newTokenPair()
	if err != nil {
		return domain.User{}, "", err
	}

	var expiresAt *time.Time
	if ttl != nil {
		t := s.now().UTC().Add(*ttl)
		expiresAt = &t
	}

	_, err = s.repo.CreateDeviceToken(ctx, domain.DeviceToken{
		UserID:    u.ID,
		Name:      defaultString(tokenName, "badgeuse"),
		TokenHash: hash,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return domain.User{}, "", err
	}

	_ = s.repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: &u.ID, Action: "auth.device_token.issue", TargetType: "user", TargetID: &u.ID, Metadata: "device token issued"})
	return u, plain, nil
}

func (s *AttendanceService) AuthenticateSession(ctx context.Context, token string) (domain.Identity, error) {
	hash := hashToken(token)
	session, err := s.repo.GetSessionByTokenHash(ctx, hash)
	if err != nil {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	if session.ExpiresAt.Before(s.now().UTC()) {
		_ = s.repo.DeleteSessionByTokenHash(ctx, hash)
		return domain.Identity{}, domain.ErrSessionExpired
	}
	return s.identityByUserID(ctx, session.UserID)
}

func (s *AttendanceService) AuthenticateBearerToken(ctx context.Context, token string) (domain.Identity, error) {
	dt, err := s.repo.GetDeviceTokenByTokenHash(ctx, hashToken(token))
	if err != nil {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	if dt.ExpiresAt != nil && dt.ExpiresAt.Before(s.now().UTC()) {
		return domain.Identity{}, domain.ErrTokenExpired
	}
	return s.identityByUserID(ctx, dt.UserID)
}

func (s *AttendanceService) LogoutSession(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return s.repo.DeleteSessionByTokenHash(ctx, hashToken(token))
}

func (s *AttendanceService) WriteAudit(ctx context.Context, actorUserID *uint, action, targetType string, targetID *uint, metadata string) {
	_ = s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUserID: actorUserID,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Metadata:    metadata,
	})
}

func (s *AttendanceService) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *AttendanceService) authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return u, nil
}

func (s *AttendanceService) identityByUserID(ctx context.Context, userID uint) (domain.Identity, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	return domain.Identity{User: u}, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func newTokenPair() (string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	plain := base64.RawURLEncoding.EncodeToString(raw)
	return plain, hashToken(plain), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", sum[:])
}

func defaultString(input, fallback string) string {
	if strings.TrimSpace(input) == "" {
		return fallback
	}
	return input
}
