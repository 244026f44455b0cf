package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/scorpionhol/pointage/internal/domain"
)

func newTestRepo(t *testing.T) *AttendanceRepository {
	t.Helper()
	ctx := context.Background()

	db, err := Open(filepath.Join(t.TempDir(), "pointage_test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return NewAttendanceRepository(db)
}

func TestAgentLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	badge := "M-001"
	alice, err := repo.CreateAgent(ctx, domain.Agent{Name: "Alice", Note: "Comptable", BadgeCode: &badge})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := repo.CreateAgent(ctx, domain.Agent{Name: "Bob", Note: "Technicien"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	byBadge, err := repo.FindAgentByBadgeCode(ctx, "M-001")
	if err != nil {
		t.Fatalf("find by badge: %v", err)
	}
	if byBadge.ID != alice.ID || byBadge.BadgeCode == nil || *byBadge.BadgeCode != "M-001" {
		t.Fatalf("unexpected agent %+v", byBadge)
	}
	if _, err := repo.FindAgentByBadgeCode(ctx, "M-404"); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Fatalf("unknown badge: expected ErrAgentNotFound, got %v", err)
	}

	byID, err := repo.FindAgentByID(ctx, bob.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if byID.Name != "Bob" || byID.BadgeCode != nil {
		t.Fatalf("unexpected agent %+v", byID)
	}

	all, err := repo.ListAgents(ctx, "", 10)
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(all))
	}

	filtered, err := repo.ListAgents(ctx, "ali", 10)
	if err != nil {
		t.Fatalf("list agents filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Name != "Alice" {
		t.Fatalf("unexpected filtered result %+v", filtered)
	}
}

func TestDeleteAgentRemovesPunchEvents(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	agent, err := repo.CreateAgent(ctx, domain.Agent{Name: "Chloe", Note: "RH"})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	_, err = repo.CreatePunchEvent(ctx, domain.PunchEvent{AgentID: &agent.ID, Type: "arrivee", Time: "2024-01-10T08:00:00Z", Source: "badgeuse_api"})
	if err != nil {
		t.Fatalf("create punch: %v", err)
	}

	if err := repo.DeleteAgent(ctx, agent.ID); err != nil {
		t.Fatalf("delete agent: %v", err)
	}
	if _, err := repo.FindAgentByID(ctx, agent.ID); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Fatalf("deleted agent still found: %v", err)
	}

	events, err := repo.ListPunchEventsByAgent(ctx, agent.ID, 10)
	if err != nil {
		t.Fatalf("list punches: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("punch events must go with the agent, got %d", len(events))
	}

	if err := repo.DeleteAgent(ctx, agent.ID); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Fatalf("second delete: expected ErrAgentNotFound, got %v", err)
	}
}

func TestListPunchRowsJoinAndFilter(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	alice, _ := repo.CreateAgent(ctx, domain.Agent{Name: "Alice", Note: "Comptable"})
	bob, _ := repo.CreateAgent(ctx, domain.Agent{Name: "Bob", Note: "Technicien"})

	mustPunch := func(agentID *uint, punchType, ts string) {
		t.Helper()
		if _, err := repo.CreatePunchEvent(ctx, domain.PunchEvent{AgentID: agentID, Type: punchType, Time: ts, Source: "dashboard"}); err != nil {
			t.Fatalf("create punch: %v", err)
		}
	}
	mustPunch(&alice.ID, "arrivee", "2024-01-10T08:00:00Z")
	mustPunch(&alice.ID, "depart", "2024-01-10T17:30:00Z")
	mustPunch(&bob.ID, "arrivee", "2024-01-10T08:30:00Z")
	mustPunch(nil, "badge", "2024-01-10T09:00:00Z")

	rows, err := repo.ListPunchRows(ctx, "")
	if err != nil {
		t.Fatalf("list punch rows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	// Newest first on the ISO-8601 text column.
	if rows[0].Time != "2024-01-10T17:30:00Z" {
		t.Fatalf("expected newest row first, got %s", rows[0].Time)
	}

	var sawOrphan bool
	for _, row := range rows {
		if row.AgentName == nil {
			sawOrphan = true
		}
	}
	if !sawOrphan {
		t.Fatalf("orphan punch must surface with nil agent name")
	}

	filtered, err := repo.ListPunchRows(ctx, "Ali")
	if err != nil {
		t.Fatalf("list punch rows filtered: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 rows for Ali, got %d", len(filtered))
	}
	for _, row := range filtered {
		if row.AgentName == nil || *row.AgentName != "Alice" {
			t.Fatalf("filter leaked row %+v", row)
		}
	}

	// SQLite LIKE is ASCII case-insensitive; the filter inherits that.
	lower, err := repo.ListPunchRows(ctx, "ali")
	if err != nil {
		t.Fatalf("list punch rows lowercase filter: %v", err)
	}
	if len(lower) != 2 {
		t.Fatalf("lowercase filter must match the same rows, got %d", len(lower))
	}
}

func TestAuditLogJoin(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	user, err := repo.CreateUser(ctx, domain.User{Username: "admin", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: &user.ID, Action: "agents.create", TargetType: "agent", Metadata: "nom=Alice"}); err != nil {
		t.Fatalf("create audit log: %v", err)
	}
	if err := repo.CreateAuditLog(ctx, domain.AuditLog{Action: "punch.record", TargetType: "presence"}); err != nil {
		t.Fatalf("create anonymous audit log: %v", err)
	}

	records, err := repo.ListAuditLogs(ctx, 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// Newest first.
	if records[0].Action != "punch.record" || records[0].ActorUsername != "" {
		t.Fatalf("unexpected first record %+v", records[0])
	}
	if records[1].ActorUsername != "admin" || records[1].Action != "agents.create" {
		t.Fatalf("unexpected second record %+v", records[1])
	}
}
