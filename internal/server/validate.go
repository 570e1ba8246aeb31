package server

import (
	"fmt"
	"strings"

	"spycats/internal/domain"
	"spycats/internal/engine"
)

func invalidInput(format string, args ...any) error {
	return domain.Errorf(domain.KindInvalidInput, format, args...)
}

func requiredString(field string, v *string) (string, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "", invalidInput("%s is required", field)
	}
	return *v, nil
}

func nonNegative(field string, v *float64) (float64, error) {
	if v == nil {
		return 0, invalidInput("%s is required", field)
	}
	if *v < 0 {
		return 0, invalidInput("%s must not be negative", field)
	}
	return *v, nil
}

func validateCreateAgent(req CreateAgentRequest) (engine.AgentInput, error) {
	var in engine.AgentInput
	var err error
	if in.Name, err = requiredString("name", req.Name); err != nil {
		return in, err
	}
	if in.YearsOfExperience, err = nonNegative("years_of_experience", req.YearsOfExperience); err != nil {
		return in, err
	}
	if in.Breed, err = requiredString("breed", req.Breed); err != nil {
		return in, err
	}
	if in.Salary, err = nonNegative("salary", req.Salary); err != nil {
		return in, err
	}
	return in, nil
}

func validateUpdateSalary(req UpdateSalaryRequest) (float64, error) {
	return nonNegative("salary", req.Salary)
}

func validateCreateMission(req CreateMissionRequest) (engine.MissionInput, error) {
	in := engine.MissionInput{CatID: req.CatID}
	if req.IsComplete != nil {
		in.IsComplete = *req.IsComplete
	}
	if n := len(req.Targets); n < domain.MinTargets || n > domain.MaxTargets {
		return in, &domain.Error{
			Kind:    domain.KindInvalidInput,
			Code:    "invalid_target_count",
			Message: fmt.Sprintf("a mission needs between %d and %d targets, got %d", domain.MinTargets, domain.MaxTargets, n),
		}
	}
	for i, t := range req.Targets {
		name, err := requiredString(fmt.Sprintf("targets[%d].name", i), t.Name)
		if err != nil {
			return in, err
		}
		country, err := requiredString(fmt.Sprintf("targets[%d].country", i), t.Country)
		if err != nil {
			return in, err
		}
		ti := engine.TargetInput{Name: name, Country: country}
		if t.Notes != nil {
			ti.Notes = *t.Notes
		}
		if t.IsComplete != nil {
			ti.IsComplete = *t.IsComplete
		}
		in.Targets = append(in.Targets, ti)
	}
	return in, nil
}

// requestedCompletion reads the completion flag; an absent body or field means true.
func requestedCompletion(req *CompleteMissionRequest) bool {
	return req == nil || req.IsComplete == nil || *req.IsComplete
}

func validateUpdateTarget(req *UpdateTargetRequest) engine.TargetUpdate {
	var upd engine.TargetUpdate
	if req == nil {
		return upd
	}
	if req.Notes != nil {
		upd.Notes = *req.Notes
	}
	if req.IsComplete != nil {
		upd.IsComplete = *req.IsComplete
	}
	return upd
}
