package spycatssdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"spycats/internal/breeds"
	"spycats/internal/db"
	"spycats/internal/engine"
	"spycats/internal/logging"
	"spycats/internal/migrate"
	"spycats/internal/server"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(conn, db.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, db.SQLite, breeds.Static{"Siamese", "Persian"})
	e.Logger = logging.Discard()
	handler, err := server.New(server.Config{Engine: e, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestClientMissionFlow(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	cat, err := c.CreateAgent(ctx, "Tom", 4, "Persian", 3000)
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if _, err := c.UpdateSalary(ctx, cat.ID, 3500); err != nil {
		t.Fatalf("update salary: %v", err)
	}
	got, err := c.GetAgent(ctx, cat.ID)
	if err != nil || got.Salary != 3500 {
		t.Fatalf("get agent: %+v %v", got, err)
	}

	m, err := c.CreateMission(ctx, nil, []NewTarget{{Name: "Viper", Country: "IT"}, {Name: "Ghost", Country: "PE", Notes: "Lima"}})
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	if m.CatID != nil || len(m.Targets) != 2 {
		t.Fatalf("unexpected mission: %+v", m)
	}
	m, err = c.AssignAgent(ctx, m.ID, cat.ID)
	if err != nil || m.CatID == nil || *m.CatID != cat.ID {
		t.Fatalf("assign: %+v %v", m, err)
	}
	if err := c.DeleteMission(ctx, m.ID); ErrorCode(err) != "mission_assigned" {
		t.Fatalf("expected mission_assigned, got %v", err)
	}

	tg, err := c.UpdateTarget(ctx, m.Targets[0].ID, "found the den", true)
	if err != nil || !tg.IsComplete || tg.Notes != "found the den" {
		t.Fatalf("update target: %+v %v", tg, err)
	}
	if _, err := c.CompleteMission(ctx, m.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err = c.UpdateTarget(ctx, m.Targets[1].ID, "too late", false)
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "mission_already_complete" {
		t.Fatalf("expected mission_already_complete, got %v", err)
	}

	missions, err := c.ListMissions(ctx)
	if err != nil || len(missions) != 1 || !missions[0].IsComplete {
		t.Fatalf("list missions: %+v %v", missions, err)
	}
	events, err := c.Events(ctx, 100)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 6 || events[0].Type != "mission.completed" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	if _, err := c.CreateAgent(ctx, "Rex", 1, "Dalmatian", 1); ErrorCode(err) != "invalid_breed" {
		t.Fatalf("expected invalid_breed, got %v", err)
	}
	if _, err := c.GetAgent(ctx, 77); ErrorCode(err) != "not_found" {
		t.Fatalf("expected not_found, got %v", err)
	}
	if _, err := c.CreateMission(ctx, nil, nil); ErrorCode(err) != "invalid_target_count" {
		t.Fatalf("expected invalid_target_count, got %v", err)
	}
	if err := c.DeleteAgent(ctx, 77); ErrorCode(err) != "not_found" {
		t.Fatalf("expected not_found, got %v", err)
	}
	agents, err := c.ListAgents(ctx)
	if err != nil || len(agents) != 0 {
		t.Fatalf("list agents: %+v %v", agents, err)
	}
}
