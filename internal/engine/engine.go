package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"spycats/internal/breeds"
	"spycats/internal/db"
	"spycats/internal/domain"
	"spycats/internal/events"
	"spycats/internal/metrics"
	"spycats/internal/repo"
)

var tracer = otel.Tracer("spycats/internal/engine")

// Engine enforces the agent, mission and target rules. Every mutation runs in
// a single transaction together with its audit event.
type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Breeds  breeds.Source
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

func New(conn *sql.DB, dialect db.Dialect, src breeds.Source) Engine {
	return Engine{
		DB:     conn,
		Repo:   repo.Repo{DB: conn, Dialect: dialect},
		Events: events.Writer{Dialect: dialect},
		Breeds: src,
		Logger: slog.Default(),
		Now:    time.Now,
	}
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// start opens a span for op; the returned func must be called with the final error.
func (e Engine) start(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "engine."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("spycats.operation", op)),
	)
	return ctx, func(err error) {
		e.Metrics.ObserveOperation(op, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if kind := domain.KindOf(err); kind != "" {
				span.SetAttributes(attribute.String("spycats.error_kind", string(kind)))
			}
		}
		span.End()
	}
}

// inTx runs fn in one transaction, committing only when fn succeeds.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, kind string, id int64, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.Now
	}
	return w.Append(ctx, tx, evtType, kind, id, payload)
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Errorf(domain.KindNotFound, format, args...)
	}
	return err
}

// Agents

// AgentInput carries the fields of a new agent.
type AgentInput struct {
	Name              string
	YearsOfExperience float64
	Breed             string
	Salary            float64
}

func (in AgentInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Errorf(domain.KindInvalidInput, "name is required")
	}
	if strings.TrimSpace(in.Breed) == "" {
		return domain.Errorf(domain.KindInvalidInput, "breed is required")
	}
	if in.YearsOfExperience < 0 {
		return domain.Errorf(domain.KindInvalidInput, "years_of_experience must not be negative")
	}
	if in.Salary < 0 {
		return domain.Errorf(domain.KindInvalidInput, "salary must not be negative")
	}
	return nil
}

// RegisterAgent validates the breed against the breed source, then stores the agent.
func (e Engine) RegisterAgent(ctx context.Context, in AgentInput) (a domain.Agent, err error) {
	ctx, finish := e.start(ctx, "RegisterAgent")
	defer func() { finish(err) }()

	if err := in.validate(); err != nil {
		return domain.Agent{}, err
	}
	if err := e.checkBreed(ctx, in.Breed); err != nil {
		return domain.Agent{}, err
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		created, err := e.Repo.InsertAgent(ctx, tx, domain.Agent{
			Name:              in.Name,
			YearsOfExperience: in.YearsOfExperience,
			Breed:             in.Breed,
			Salary:            in.Salary,
		})
		if err != nil {
			return err
		}
		a = created
		return e.appendEvent(ctx, tx, events.AgentRegistered, events.KindAgent, a.ID, events.EventPayload{
			"name":  a.Name,
			"breed": a.Breed,
		})
	})
	if err != nil {
		return domain.Agent{}, err
	}
	return a, nil
}

// checkBreed runs outside any transaction so none is held across the network call.
func (e Engine) checkBreed(ctx context.Context, breed string) error {
	if e.Breeds == nil {
		return &domain.Error{Kind: domain.KindUpstreamUnavailable, Message: "error fetching breeds", Err: errors.New("no breed source configured")}
	}
	names, err := e.Breeds.Breeds(ctx)
	if err != nil {
		e.logger().WarnContext(ctx, "breed lookup failed", "error", err)
		return &domain.Error{Kind: domain.KindUpstreamUnavailable, Message: "error fetching breeds", Err: err}
	}
	if !breeds.Match(names, breed) {
		return domain.Errorf(domain.KindInvalidBreed, "invalid breed %q", breed)
	}
	return nil
}

// ListBreeds returns the currently recognized breed names.
func (e Engine) ListBreeds(ctx context.Context) (names []string, err error) {
	ctx, finish := e.start(ctx, "ListBreeds")
	defer func() { finish(err) }()
	if e.Breeds == nil {
		return nil, &domain.Error{Kind: domain.KindUpstreamUnavailable, Message: "error fetching breeds", Err: errors.New("no breed source configured")}
	}
	names, err = e.Breeds.Breeds(ctx)
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindUpstreamUnavailable, Message: "error fetching breeds", Err: err}
	}
	return names, nil
}

func (e Engine) UpdateAgentSalary(ctx context.Context, id int64, salary float64) (a domain.Agent, err error) {
	ctx, finish := e.start(ctx, "UpdateAgentSalary")
	defer func() { finish(err) }()

	if salary < 0 {
		return domain.Agent{}, domain.Errorf(domain.KindInvalidInput, "salary must not be negative")
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		current, err := e.Repo.GetAgent(ctx, tx, id)
		if err != nil {
			return notFound(err, "spy cat not found")
		}
		if err := e.Repo.UpdateAgentSalary(ctx, tx, id, salary); err != nil {
			return notFound(err, "spy cat not found")
		}
		if err := e.appendEvent(ctx, tx, events.AgentSalaryUpdated, events.KindAgent, id, events.EventPayload{
			"from": current.Salary,
			"to":   salary,
		}); err != nil {
			return err
		}
		current.Salary = salary
		a = current
		return nil
	})
	if err != nil {
		return domain.Agent{}, err
	}
	return a, nil
}

// DeleteAgent removes the agent. Missions referencing it keep their cat_id.
func (e Engine) DeleteAgent(ctx context.Context, id int64) (err error) {
	ctx, finish := e.start(ctx, "DeleteAgent")
	defer func() { finish(err) }()

	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteAgent(ctx, tx, id); err != nil {
			return notFound(err, "spy cat not found")
		}
		return e.appendEvent(ctx, tx, events.AgentDeleted, events.KindAgent, id, nil)
	})
}

func (e Engine) GetAgent(ctx context.Context, id int64) (a domain.Agent, err error) {
	ctx, finish := e.start(ctx, "GetAgent")
	defer func() { finish(err) }()

	a, err = e.Repo.GetAgent(ctx, nil, id)
	if err != nil {
		return domain.Agent{}, notFound(err, "spy cat not found")
	}
	return a, nil
}

func (e Engine) ListAgents(ctx context.Context) (items []domain.Agent, err error) {
	ctx, finish := e.start(ctx, "ListAgents")
	defer func() { finish(err) }()

	return e.Repo.ListAgents(ctx, nil)
}

// Missions

// MissionInput carries the fields of a new mission.
type MissionInput struct {
	CatID      *int64
	IsComplete bool
	Targets    []TargetInput
}

type TargetInput struct {
	Name       string
	Country    string
	Notes      string
	IsComplete bool
}

func (in MissionInput) validate() error {
	if n := len(in.Targets); n < domain.MinTargets || n > domain.MaxTargets {
		return &domain.Error{
			Kind:    domain.KindInvalidInput,
			Code:    "invalid_target_count",
			Message: fmt.Sprintf("a mission needs between %d and %d targets, got %d", domain.MinTargets, domain.MaxTargets, n),
		}
	}
	for i, t := range in.Targets {
		if strings.TrimSpace(t.Name) == "" {
			return domain.Errorf(domain.KindInvalidInput, "targets[%d].name is required", i)
		}
		if strings.TrimSpace(t.Country) == "" {
			return domain.Errorf(domain.KindInvalidInput, "targets[%d].country is required", i)
		}
	}
	return nil
}

// CreateMission stores a mission and its targets. The target set is fixed from here on.
func (e Engine) CreateMission(ctx context.Context, in MissionInput) (m domain.Mission, err error) {
	ctx, finish := e.start(ctx, "CreateMission")
	defer func() { finish(err) }()

	if err := in.validate(); err != nil {
		return domain.Mission{}, err
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if in.CatID != nil {
			ok, err := e.Repo.AgentExists(ctx, tx, *in.CatID)
			if err != nil {
				return err
			}
			if !ok {
				return domain.Errorf(domain.KindNotFound, "spy cat not found")
			}
		}
		created, err := e.Repo.InsertMission(ctx, tx, domain.Mission{CatID: in.CatID, IsComplete: in.IsComplete})
		if err != nil {
			return err
		}
		created.Targets = make([]domain.Target, 0, len(in.Targets))
		for _, ti := range in.Targets {
			t, err := e.Repo.InsertTarget(ctx, tx, domain.Target{
				MissionID:  created.ID,
				Name:       ti.Name,
				Country:    ti.Country,
				Notes:      ti.Notes,
				IsComplete: ti.IsComplete,
			})
			if err != nil {
				return err
			}
			created.Targets = append(created.Targets, t)
		}
		m = created
		return e.appendEvent(ctx, tx, events.MissionCreated, events.KindMission, m.ID, events.EventPayload{
			"cat_id":      m.CatID,
			"is_complete": m.IsComplete,
			"targets":     len(m.Targets),
		})
	})
	if err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

// DeleteMission removes an unassigned mission and its targets.
func (e Engine) DeleteMission(ctx context.Context, id int64) (err error) {
	ctx, finish := e.start(ctx, "DeleteMission")
	defer func() { finish(err) }()

	return e.inTx(ctx, func(tx *sql.Tx) error {
		m, err := e.Repo.GetMission(ctx, tx, id)
		if err != nil {
			return notFound(err, "mission not found")
		}
		if m.Assigned() {
			return domain.Errorf(domain.KindMissionAssigned, "mission is assigned to a cat and cannot be deleted")
		}
		if err := e.Repo.DeleteMission(ctx, tx, id); err != nil {
			return notFound(err, "mission not found")
		}
		return e.appendEvent(ctx, tx, events.MissionDeleted, events.KindMission, id, nil)
	})
}

// CompleteMission moves a mission from open to complete. Completion is one-way.
func (e Engine) CompleteMission(ctx context.Context, id int64) (domain.Mission, error) {
	return e.SetMissionComplete(ctx, id, true)
}

// SetMissionComplete applies a requested completion flag to an open mission.
// Missing and already complete missions are reported before the flag is
// checked; only true is accepted.
func (e Engine) SetMissionComplete(ctx context.Context, id int64, complete bool) (m domain.Mission, err error) {
	ctx, finish := e.start(ctx, "CompleteMission")
	defer func() { finish(err) }()

	err = e.inTx(ctx, func(tx *sql.Tx) error {
		current, err := e.Repo.GetMission(ctx, tx, id)
		if err != nil {
			return notFound(err, "mission not found")
		}
		if current.IsComplete {
			return domain.Errorf(domain.KindAlreadyComplete, "mission is already complete")
		}
		if !complete {
			return domain.Errorf(domain.KindInvalidInput, "is_complete can only be set to true")
		}
		current.IsComplete = true
		if err := e.Repo.UpdateMission(ctx, tx, current); err != nil {
			return notFound(err, "mission not found")
		}
		if err := e.appendEvent(ctx, tx, events.MissionCompleted, events.KindMission, id, nil); err != nil {
			return err
		}
		if err := e.attachTargets(ctx, tx, &current); err != nil {
			return err
		}
		m = current
		return nil
	})
	if err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

// AssignAgentToMission points an open mission at an agent, replacing any previous one.
func (e Engine) AssignAgentToMission(ctx context.Context, missionID, catID int64) (m domain.Mission, err error) {
	ctx, finish := e.start(ctx, "AssignAgentToMission")
	defer func() { finish(err) }()

	err = e.inTx(ctx, func(tx *sql.Tx) error {
		current, err := e.Repo.GetMission(ctx, tx, missionID)
		if err != nil {
			return notFound(err, "mission not found")
		}
		ok, err := e.Repo.AgentExists(ctx, tx, catID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.Errorf(domain.KindNotFound, "spy cat not found")
		}
		if current.IsComplete {
			return domain.Errorf(domain.KindMissionAlreadyComplete, "mission is already completed and cannot be assigned a cat")
		}
		previous := current.CatID
		current.CatID = &catID
		if err := e.Repo.UpdateMission(ctx, tx, current); err != nil {
			return notFound(err, "mission not found")
		}
		if err := e.appendEvent(ctx, tx, events.MissionAssigned, events.KindMission, missionID, events.EventPayload{
			"cat_id":   catID,
			"previous": previous,
		}); err != nil {
			return err
		}
		if err := e.attachTargets(ctx, tx, &current); err != nil {
			return err
		}
		m = current
		return nil
	})
	if err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

func (e Engine) GetMission(ctx context.Context, id int64) (m domain.Mission, err error) {
	ctx, finish := e.start(ctx, "GetMission")
	defer func() { finish(err) }()

	m, err = e.Repo.GetMission(ctx, nil, id)
	if err != nil {
		return domain.Mission{}, notFound(err, "mission not found")
	}
	if err := e.attachTargets(ctx, nil, &m); err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

func (e Engine) ListMissions(ctx context.Context) (items []domain.Mission, err error) {
	ctx, finish := e.start(ctx, "ListMissions")
	defer func() { finish(err) }()

	items, err = e.Repo.ListMissions(ctx, nil)
	if err != nil {
		return nil, err
	}
	if err := e.Repo.AttachTargets(ctx, nil, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (e Engine) attachTargets(ctx context.Context, tx *sql.Tx, m *domain.Mission) error {
	ms := []domain.Mission{*m}
	if err := e.Repo.AttachTargets(ctx, tx, ms); err != nil {
		return err
	}
	m.Targets = ms[0].Targets
	return nil
}

// Targets

// TargetUpdate is the mutable part of a target. Empty Notes keeps the stored notes;
// IsComplete is always written.
type TargetUpdate struct {
	Notes      string
	IsComplete bool
}

// UpdateTarget edits a target of an open mission until the target itself is complete.
func (e Engine) UpdateTarget(ctx context.Context, id int64, upd TargetUpdate) (t domain.Target, err error) {
	ctx, finish := e.start(ctx, "UpdateTarget")
	defer func() { finish(err) }()

	err = e.inTx(ctx, func(tx *sql.Tx) error {
		current, err := e.Repo.GetTarget(ctx, tx, id)
		if err != nil {
			return notFound(err, "target not found")
		}
		mission, err := e.Repo.GetMission(ctx, tx, current.MissionID)
		if err != nil {
			return notFound(err, "mission associated with this target not found")
		}
		if mission.IsComplete {
			return domain.Errorf(domain.KindMissionAlreadyComplete, "mission is already complete; target cannot be updated")
		}
		if current.IsComplete {
			return domain.Errorf(domain.KindTargetAlreadyComplete, "cannot update target after completion")
		}
		if upd.Notes != "" {
			current.Notes = upd.Notes
		}
		current.IsComplete = upd.IsComplete
		if err := e.Repo.UpdateTarget(ctx, tx, current); err != nil {
			return notFound(err, "target not found")
		}
		if err := e.appendEvent(ctx, tx, events.TargetUpdated, events.KindTarget, id, events.EventPayload{
			"mission_id":    current.MissionID,
			"notes_changed": upd.Notes != "",
			"is_complete":   current.IsComplete,
		}); err != nil {
			return err
		}
		t = current
		return nil
	})
	if err != nil {
		return domain.Target{}, err
	}
	return t, nil
}

// Events

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilter) (items []domain.Event, err error) {
	ctx, finish := e.start(ctx, "ListEvents")
	defer func() { finish(err) }()

	return e.Repo.ListEvents(ctx, nil, f)
}
