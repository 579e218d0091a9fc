// ABOUTME: Exports a SpecState as a structured YAML document matching the on-disk spec.yaml shape.
// ABOUTME: Uses gopkg.in/yaml.v3, with the same deterministic lane/card ordering as the Markdown exporter.
package export

import (
	"fmt"

	"github.com/specdaemon/specd/internal/core"
	"gopkg.in/yaml.v3"
)

// Card is the YAML shape of a single card within a lane.
type Card struct {
	ID        string   `yaml:"id"`
	CardType  string   `yaml:"type"`
	Title     string   `yaml:"title"`
	Body      string   `yaml:"body,omitempty"`
	Order     float64  `yaml:"order"`
	Refs      []string `yaml:"refs,omitempty"`
	CreatedBy string   `yaml:"created_by"`
}

// Lane is the YAML shape of a lane containing cards.
type Lane struct {
	Name  string `yaml:"name"`
	Cards []Card `yaml:"cards"`
}

// Spec is the top-level YAML shape of the exported spec state.
type Spec struct {
	Name            string `yaml:"name"`
	Version         string `yaml:"version"`
	OneLiner        string `yaml:"one_liner"`
	Goal            string `yaml:"goal"`
	Description     string `yaml:"description,omitempty"`
	Constraints     string `yaml:"constraints,omitempty"`
	SuccessCriteria string `yaml:"success_criteria,omitempty"`
	Risks           string `yaml:"risks,omitempty"`
	Notes           string `yaml:"notes,omitempty"`
	Lanes           []Lane `yaml:"lanes"`
}

// ExportYAML exports state as structured YAML matching the on-disk
// spec.yaml layout.
func ExportYAML(state *core.SpecState) (string, error) {
	c := state.Core

	cardsByLane := groupCardsByLane(state)
	orderedLanes := orderedLaneNames(state, cardsByLane)

	yamlLanes := make([]Lane, 0, len(orderedLanes))
	for _, laneName := range orderedLanes {
		cards := cardsByLane[laneName]
		yamlCards := make([]Card, 0, len(cards))
		for _, card := range cards {
			yc := Card{
				ID:        card.CardID.String(),
				CardType:  card.CardType,
				Title:     card.Title,
				Order:     card.Order,
				CreatedBy: card.CreatedBy,
			}
			if card.Body != nil {
				yc.Body = *card.Body
			}
			if len(card.Refs) > 0 {
				yc.Refs = card.Refs
			}
			yamlCards = append(yamlCards, yc)
		}
		yamlLanes = append(yamlLanes, Lane{Name: laneName, Cards: yamlCards})
	}

	spec := Spec{
		Name:     c.Title,
		Version:  "0.1",
		OneLiner: c.OneLiner,
		Goal:     c.Goal,
		Lanes:    yamlLanes,
	}
	if c.Description != nil {
		spec.Description = *c.Description
	}
	if c.Constraints != nil {
		spec.Constraints = *c.Constraints
	}
	if c.SuccessCriteria != nil {
		spec.SuccessCriteria = *c.SuccessCriteria
	}
	if c.Risks != nil {
		spec.Risks = *c.Risks
	}
	if c.Notes != nil {
		spec.Notes = *c.Notes
	}

	data, err := yaml.Marshal(&spec)
	if err != nil {
		return "", fmt.Errorf("yaml marshal: %w", err)
	}
	return string(data), nil
}
