package domain

type Agent struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	YearsOfExperience float64 `json:"years_of_experience"`
	Breed             string  `json:"breed"`
	Salary            float64 `json:"salary"`
}

type Mission struct {
	ID         int64    `json:"id"`
	CatID      *int64   `json:"cat_id"`
	IsComplete bool     `json:"is_complete"`
	Targets    []Target `json:"targets"`
}

// Assigned reports whether the mission currently references an agent.
func (m Mission) Assigned() bool {
	return m.CatID != nil
}

type Target struct {
	ID         int64  `json:"id"`
	MissionID  int64  `json:"mission_id"`
	Name       string `json:"name"`
	Country    string `json:"country"`
	Notes      string `json:"notes"`
	IsComplete bool   `json:"is_complete"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   int64  `json:"entity_id"`
	Payload    string `json:"payload_json"`
}

const (
	MinTargets = 1
	MaxTargets = 3
)
