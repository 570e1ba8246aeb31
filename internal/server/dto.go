package server

import (
	"spycats/internal/domain"
)

// Request payloads

type CreateAgentRequest struct {
	_                 struct{} `json:"-" additionalProperties:"true"`
	Name              *string  `json:"name,omitempty"`
	YearsOfExperience *float64 `json:"years_of_experience,omitempty"`
	Breed             *string  `json:"breed,omitempty"`
	Salary            *float64 `json:"salary,omitempty"`
}

type UpdateSalaryRequest struct {
	_      struct{} `json:"-" additionalProperties:"true"`
	Salary *float64 `json:"salary,omitempty"`
}

type CreateTargetRequest struct {
	_          struct{} `json:"-" additionalProperties:"true"`
	Name       *string  `json:"name,omitempty"`
	Country    *string  `json:"country,omitempty"`
	Notes      *string  `json:"notes,omitempty" nullable:"true"`
	IsComplete *bool    `json:"is_complete,omitempty"`
}

type CreateMissionRequest struct {
	_          struct{}              `json:"-" additionalProperties:"true"`
	CatID      *int64                `json:"cat_id,omitempty" nullable:"true"`
	IsComplete *bool                 `json:"is_complete,omitempty"`
	Targets    []CreateTargetRequest `json:"targets,omitempty"`
}

type CompleteMissionRequest struct {
	_          struct{} `json:"-" additionalProperties:"true"`
	IsComplete *bool    `json:"is_complete,omitempty"`
}

type UpdateTargetRequest struct {
	_          struct{} `json:"-" additionalProperties:"true"`
	Notes      *string  `json:"notes,omitempty" nullable:"true"`
	IsComplete *bool    `json:"is_complete,omitempty"`
}

// Responses

type AgentResponse struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	YearsOfExperience float64 `json:"years_of_experience"`
	Breed             string  `json:"breed"`
	Salary            float64 `json:"salary"`
}

type TargetResponse struct {
	ID         int64  `json:"id"`
	MissionID  int64  `json:"mission_id"`
	Name       string `json:"name"`
	Country    string `json:"country"`
	Notes      string `json:"notes"`
	IsComplete bool   `json:"is_complete"`
}

type MissionResponse struct {
	ID         int64            `json:"id"`
	CatID      *int64           `json:"cat_id" nullable:"true"`
	IsComplete bool             `json:"is_complete"`
	Targets    []TargetResponse `json:"targets"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   int64  `json:"entity_id"`
	Payload    string `json:"payload_json"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func agentResponse(a domain.Agent) AgentResponse {
	return AgentResponse{
		ID:                a.ID,
		Name:              a.Name,
		YearsOfExperience: a.YearsOfExperience,
		Breed:             a.Breed,
		Salary:            a.Salary,
	}
}

func mapAgents(items []domain.Agent) []AgentResponse {
	out := make([]AgentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, agentResponse(a))
	}
	return out
}

func targetResponse(t domain.Target) TargetResponse {
	return TargetResponse{
		ID:         t.ID,
		MissionID:  t.MissionID,
		Name:       t.Name,
		Country:    t.Country,
		Notes:      t.Notes,
		IsComplete: t.IsComplete,
	}
}

func missionResponse(m domain.Mission) MissionResponse {
	targets := make([]TargetResponse, 0, len(m.Targets))
	for _, t := range m.Targets {
		targets = append(targets, targetResponse(t))
	}
	return MissionResponse{
		ID:         m.ID,
		CatID:      m.CatID,
		IsComplete: m.IsComplete,
		Targets:    targets,
	}
}

func mapMissions(items []domain.Mission) []MissionResponse {
	out := make([]MissionResponse, 0, len(items))
	for _, m := range items {
		out = append(out, missionResponse(m))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    e.Payload,
	}
}
