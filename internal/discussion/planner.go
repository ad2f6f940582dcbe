package discussion

import (
	"sort"

	"basegraph.app/roundtable/internal/model"
)

// Speaking order tables. Personas missing from a table go after every listed one,
// keeping the caller's relative order.
var (
	confrontationalOrder = []model.Persona{
		model.PersonaDevilsAdvocate,
		model.PersonaCritic,
		model.PersonaSkeptic,
		model.PersonaStrategic,
		model.PersonaAnalytical,
	}
	normalOrder = []model.Persona{
		model.PersonaStrategic,
		model.PersonaAnalytical,
		model.PersonaPragmatic,
		model.PersonaCreative,
		model.PersonaSupportive,
	}
)

// Plan returns agent ids in speaking order for the given intensity.
// It is a pure function of its inputs: the same agents and intensity always yield the same order.
func Plan(agents []model.Agent, intensity model.Intensity) ([]int64, error) {
	if len(agents) == 0 {
		return nil, &PlanningError{Err: ErrNoAgents}
	}

	table := normalOrder
	if intensity.Confrontational() {
		table = confrontationalOrder
	}

	ranked := make([]model.Agent, len(agents))
	copy(ranked, agents)
	sort.SliceStable(ranked, func(i, j int) bool {
		return personaRank(table, ranked[i].Persona) < personaRank(table, ranked[j].Persona)
	})

	order := make([]int64, len(ranked))
	for i, a := range ranked {
		order[i] = a.ID
	}
	return order, nil
}

func personaRank(table []model.Persona, p model.Persona) int {
	for i, candidate := range table {
		if candidate == p {
			return i
		}
	}
	return len(table)
}
