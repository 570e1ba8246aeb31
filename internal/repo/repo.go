package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"spycats/internal/db"
	"spycats/internal/domain"
)

type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

var ErrNotFound = errors.New("not found")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns tx when non-nil so reads inside an engine operation see its own writes.
func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	return r.q(tx).ExecContext(ctx, r.Dialect.Rebind(query), args...)
}

func (r Repo) query(ctx context.Context, tx *sql.Tx, query string, args ...any) (*sql.Rows, error) {
	return r.q(tx).QueryContext(ctx, r.Dialect.Rebind(query), args...)
}

func (r Repo) queryRow(ctx context.Context, tx *sql.Tx, query string, args ...any) *sql.Row {
	return r.q(tx).QueryRowContext(ctx, r.Dialect.Rebind(query), args...)
}

// insertReturningID runs an INSERT ... RETURNING id, supported by both SQLite and Postgres.
func (r Repo) insertReturningID(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	var id int64
	if err := r.queryRow(ctx, tx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Agents

const agentColumns = `id,name,years_of_experience,breed,salary`

func scanAgent(row interface{ Scan(...any) error }) (domain.Agent, error) {
	var a domain.Agent
	err := row.Scan(&a.ID, &a.Name, &a.YearsOfExperience, &a.Breed, &a.Salary)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) InsertAgent(ctx context.Context, tx *sql.Tx, a domain.Agent) (domain.Agent, error) {
	id, err := r.insertReturningID(ctx, tx, `INSERT INTO spy_cats(name,years_of_experience,breed,salary) VALUES (?,?,?,?)`,
		a.Name, a.YearsOfExperience, a.Breed, a.Salary)
	if err != nil {
		return domain.Agent{}, fmt.Errorf("insert spy cat: %w", err)
	}
	a.ID = id
	return a, nil
}

func (r Repo) GetAgent(ctx context.Context, tx *sql.Tx, id int64) (domain.Agent, error) {
	return scanAgent(r.queryRow(ctx, tx, `SELECT `+agentColumns+` FROM spy_cats WHERE id=?`, id))
}

func (r Repo) AgentExists(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	var one int
	err := r.queryRow(ctx, tx, `SELECT 1 FROM spy_cats WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r Repo) ListAgents(ctx context.Context, tx *sql.Tx) ([]domain.Agent, error) {
	rows, err := r.query(ctx, tx, `SELECT `+agentColumns+` FROM spy_cats ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) UpdateAgentSalary(ctx context.Context, tx *sql.Tx, id int64, salary float64) error {
	res, err := r.exec(ctx, tx, `UPDATE spy_cats SET salary=? WHERE id=?`, salary, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r Repo) DeleteAgent(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := r.exec(ctx, tx, `DELETE FROM spy_cats WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// Missions

const missionColumns = `id,cat_id,is_complete`

func scanMission(row interface{ Scan(...any) error }) (domain.Mission, error) {
	var m domain.Mission
	var catID sql.NullInt64
	err := row.Scan(&m.ID, &catID, &m.IsComplete)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if catID.Valid {
		id := catID.Int64
		m.CatID = &id
	}
	return m, nil
}

// InsertMission stores the mission row only; targets are inserted separately.
func (r Repo) InsertMission(ctx context.Context, tx *sql.Tx, m domain.Mission) (domain.Mission, error) {
	id, err := r.insertReturningID(ctx, tx, `INSERT INTO missions(cat_id,is_complete) VALUES (?,?)`,
		nullableID(m.CatID), m.IsComplete)
	if err != nil {
		return domain.Mission{}, fmt.Errorf("insert mission: %w", err)
	}
	m.ID = id
	return m, nil
}

// GetMission returns the mission row without its targets.
func (r Repo) GetMission(ctx context.Context, tx *sql.Tx, id int64) (domain.Mission, error) {
	return scanMission(r.queryRow(ctx, tx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id))
}

// ListMissions returns mission rows without their targets.
func (r Repo) ListMissions(ctx context.Context, tx *sql.Tx) ([]domain.Mission, error) {
	rows, err := r.query(ctx, tx, `SELECT `+missionColumns+` FROM missions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Mission{}
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) UpdateMission(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	res, err := r.exec(ctx, tx, `UPDATE missions SET cat_id=?,is_complete=? WHERE id=?`, nullableID(m.CatID), m.IsComplete, m.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// DeleteMission removes the mission and the targets it owns.
func (r Repo) DeleteMission(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := r.exec(ctx, tx, `DELETE FROM targets WHERE mission_id=?`, id); err != nil {
		return fmt.Errorf("delete targets: %w", err)
	}
	res, err := r.exec(ctx, tx, `DELETE FROM missions WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// Targets

const targetColumns = `id,mission_id,name,country,notes,is_complete`

type TargetFilter struct {
	MissionIDs []int64
}

func scanTarget(row interface{ Scan(...any) error }) (domain.Target, error) {
	var t domain.Target
	err := row.Scan(&t.ID, &t.MissionID, &t.Name, &t.Country, &t.Notes, &t.IsComplete)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) InsertTarget(ctx context.Context, tx *sql.Tx, t domain.Target) (domain.Target, error) {
	id, err := r.insertReturningID(ctx, tx, `INSERT INTO targets(mission_id,name,country,notes,is_complete) VALUES (?,?,?,?,?)`,
		t.MissionID, t.Name, t.Country, t.Notes, t.IsComplete)
	if err != nil {
		return domain.Target{}, fmt.Errorf("insert target: %w", err)
	}
	t.ID = id
	return t, nil
}

func (r Repo) GetTarget(ctx context.Context, tx *sql.Tx, id int64) (domain.Target, error) {
	return scanTarget(r.queryRow(ctx, tx, `SELECT `+targetColumns+` FROM targets WHERE id=?`, id))
}

func (r Repo) ListTargets(ctx context.Context, tx *sql.Tx, f TargetFilter) ([]domain.Target, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.MissionIDs != nil {
		if len(f.MissionIDs) == 0 {
			return []domain.Target{}, nil
		}
		marks := make([]string, len(f.MissionIDs))
		for i, id := range f.MissionIDs {
			marks[i] = "?"
			args = append(args, id)
		}
		clauses = append(clauses, "mission_id IN ("+strings.Join(marks, ",")+")")
	}
	query := `SELECT ` + targetColumns + ` FROM targets WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY mission_id, id`
	rows, err := r.query(ctx, tx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Target{}
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// UpdateTarget persists the mutable target fields: notes and completion.
func (r Repo) UpdateTarget(ctx context.Context, tx *sql.Tx, t domain.Target) error {
	res, err := r.exec(ctx, tx, `UPDATE targets SET notes=?,is_complete=? WHERE id=?`, t.Notes, t.IsComplete, t.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// AttachTargets loads and attaches targets to each mission in place.
func (r Repo) AttachTargets(ctx context.Context, tx *sql.Tx, missions []domain.Mission) error {
	if len(missions) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(missions))
	for _, m := range missions {
		ids = append(ids, m.ID)
	}
	targets, err := r.ListTargets(ctx, tx, TargetFilter{MissionIDs: ids})
	if err != nil {
		return err
	}
	byMission := make(map[int64][]domain.Target, len(missions))
	for _, t := range targets {
		byMission[t.MissionID] = append(byMission[t.MissionID], t)
	}
	for i := range missions {
		ts := byMission[missions[i].ID]
		if ts == nil {
			ts = []domain.Target{}
		}
		missions[i].Targets = ts
	}
	return nil
}

func nullableID(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
