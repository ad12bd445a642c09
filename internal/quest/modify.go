package quest

import (
	"time"

	"github.com/ShayCichocki/dungeonmaster/pkg/models"
)

// ModifyInput carries the collections to upsert into a quest. Items are
// matched by id: a known id replaces the stored item, an unknown id is
// appended.
type ModifyInput struct {
	QuestID             string                      `json:"questId"`
	Contexts            []models.Context            `json:"contexts,omitempty"`
	Observables         []models.Observable         `json:"observables,omitempty"`
	Requirements        []models.Requirement        `json:"requirements,omitempty"`
	DesignDecisions     []models.DesignDecision     `json:"designDecisions,omitempty"`
	Contracts           []models.Contract           `json:"contracts,omitempty"`
	ToolingRequirements []models.ToolingRequirement `json:"toolingRequirements,omitempty"`
	Steps               []models.DependencyStep     `json:"steps,omitempty"`
}

// Modify applies input to the quest in the project containing startPath
// and stamps updatedAt, even when input names no collections.
func Modify(startPath string, input ModifyInput) error {
	dir, err := QuestsFolder(startPath)
	if err != nil {
		return err
	}
	path, err := FindInFolder(dir, input.QuestID)
	if err != nil {
		return err
	}
	return ModifyFile(path, input)
}

// ModifyFile applies input to the quest stored at path.
func ModifyFile(path string, input ModifyInput) error {
	return mutate(path, func(q *models.Quest) error {
		q.Contexts = upsert(q.Contexts, input.Contexts, func(c models.Context) string { return c.ID })
		q.Observables = upsert(q.Observables, input.Observables, func(o models.Observable) string { return o.ID })
		q.Requirements = upsert(q.Requirements, input.Requirements, func(r models.Requirement) string { return r.ID })
		q.DesignDecisions = upsert(q.DesignDecisions, input.DesignDecisions, func(d models.DesignDecision) string { return d.ID })
		q.Contracts = upsert(q.Contracts, input.Contracts, func(c models.Contract) string { return c.ID })
		q.ToolingRequirements = upsert(q.ToolingRequirements, input.ToolingRequirements, func(t models.ToolingRequirement) string { return t.ID })
		q.Steps = upsert(q.Steps, input.Steps, func(s models.DependencyStep) string { return s.ID })

		now := time.Now().UTC()
		q.UpdatedAt = &now
		return nil
	})
}

func upsert[T any](existing, incoming []T, id func(T) string) []T {
	if existing == nil {
		existing = []T{}
	}
	index := make(map[string]int, len(existing))
	for i, item := range existing {
		index[id(item)] = i
	}
	for _, item := range incoming {
		if i, ok := index[id(item)]; ok {
			existing[i] = item
			continue
		}
		index[id(item)] = len(existing)
		existing = append(existing, item)
	}
	return existing
}
