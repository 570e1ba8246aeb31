package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"spycats/internal/db"
)

const (
	AgentRegistered    = "agent.registered"
	AgentSalaryUpdated = "agent.salary_updated"
	AgentDeleted       = "agent.deleted"
	MissionCreated     = "mission.created"
	MissionCompleted   = "mission.completed"
	MissionAssigned    = "mission.assigned"
	MissionDeleted     = "mission.deleted"
	TargetUpdated      = "target.updated"
)

const (
	KindAgent   = "spy_cat"
	KindMission = "mission"
	KindTarget  = "target"
)

type Writer struct {
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits or rolls back with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind string, entityID int64, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, w.Dialect.Rebind(`INSERT INTO events(ts,type,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?)`),
		ts, evtType, entityKind, entityID, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}
