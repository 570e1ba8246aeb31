package repo_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"spycats/internal/db"
	"spycats/internal/domain"
	"spycats/internal/events"
	"spycats/internal/migrate"
	"spycats/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, *sql.DB) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(conn, db.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn, Dialect: db.SQLite}, conn
}

func TestAgentNotFound(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)

	if _, err := r.GetAgent(ctx, nil, 42); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := r.UpdateAgentSalary(ctx, nil, 42, 10); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
	if err := r.DeleteAgent(ctx, nil, 42); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
	ok, err := r.AgentExists(ctx, nil, 42)
	if err != nil || ok {
		t.Fatalf("expected missing agent, got %v %v", ok, err)
	}
}

func TestMissionTargetsAttachAndDelete(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)

	a, err := r.InsertAgent(ctx, nil, domain.Agent{Name: "Tom", YearsOfExperience: 2, Breed: "Siamese", Salary: 100})
	if err != nil {
		t.Fatalf("insert agent: %v", err)
	}
	assigned, err := r.InsertMission(ctx, nil, domain.Mission{CatID: &a.ID})
	if err != nil {
		t.Fatalf("insert mission: %v", err)
	}
	empty, err := r.InsertMission(ctx, nil, domain.Mission{})
	if err != nil {
		t.Fatalf("insert mission: %v", err)
	}
	for _, name := range []string{"Viper", "Ghost"} {
		if _, err := r.InsertTarget(ctx, nil, domain.Target{MissionID: assigned.ID, Name: name, Country: "IT"}); err != nil {
			t.Fatalf("insert target: %v", err)
		}
	}

	missions, err := r.ListMissions(ctx, nil)
	if err != nil {
		t.Fatalf("list missions: %v", err)
	}
	if err := r.AttachTargets(ctx, nil, missions); err != nil {
		t.Fatalf("attach targets: %v", err)
	}
	if len(missions) != 2 {
		t.Fatalf("expected 2 missions, got %d", len(missions))
	}
	if missions[0].CatID == nil || *missions[0].CatID != a.ID || len(missions[0].Targets) != 2 {
		t.Fatalf("unexpected first mission: %+v", missions[0])
	}
	if missions[1].ID != empty.ID || missions[1].CatID != nil || missions[1].Targets == nil || len(missions[1].Targets) != 0 {
		t.Fatalf("unexpected second mission: %+v", missions[1])
	}

	none, err := r.ListTargets(ctx, nil, repo.TargetFilter{MissionIDs: []int64{}})
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no targets for empty id set, got %v %v", none, err)
	}

	if err := r.DeleteMission(ctx, nil, assigned.ID); err != nil {
		t.Fatalf("delete mission: %v", err)
	}
	left, err := r.ListTargets(ctx, nil, repo.TargetFilter{})
	if err != nil || len(left) != 0 {
		t.Fatalf("expected targets removed with mission, got %v %v", left, err)
	}
	if _, err := r.GetMission(ctx, nil, assigned.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListEventsFiltersAndCursor(t *testing.T) {
	ctx := context.Background()
	r, conn := newTestRepo(t)

	w := events.Writer{Dialect: db.SQLite, Now: func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	appends := []struct {
		typ, kind string
		id        int64
	}{
		{events.AgentRegistered, events.KindAgent, 1},
		{events.MissionCreated, events.KindMission, 1},
		{events.MissionAssigned, events.KindMission, 1},
		{events.MissionCreated, events.KindMission, 2},
	}
	for _, a := range appends {
		if err := w.Append(ctx, tx, a.typ, a.kind, a.id, events.EventPayload{"n": a.id}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	all, err := r.ListEvents(ctx, nil, repo.EventFilter{})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(all) != 4 || all[0].Type != events.MissionCreated || all[0].EntityID != 2 {
		t.Fatalf("unexpected events: %+v", all)
	}
	if all[0].TS != "2024-05-01T12:00:00Z" || all[0].Payload != `{"n":2}` {
		t.Fatalf("unexpected event row: %+v", all[0])
	}

	cases := []struct {
		name   string
		filter repo.EventFilter
		want   int
	}{
		{"by type", repo.EventFilter{Type: events.MissionCreated}, 2},
		{"by kind", repo.EventFilter{EntityKind: events.KindMission}, 3},
		{"by entity", repo.EventFilter{EntityKind: events.KindMission, EntityID: 1}, 2},
		{"cursor", repo.EventFilter{Cursor: all[1].ID}, 2},
		{"limit", repo.EventFilter{Limit: 1}, 1},
	}
	for _, tc := range cases {
		got, err := r.ListEvents(ctx, nil, tc.filter)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(got) != tc.want {
			t.Fatalf("%s: expected %d events, got %d", tc.name, tc.want, len(got))
		}
	}
}
