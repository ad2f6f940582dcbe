package model

type Persona string

const (
	PersonaDevilsAdvocate Persona = "devils_advocate"
	PersonaCritic         Persona = "critic"
	PersonaSkeptic        Persona = "skeptic"
	PersonaStrategic      Persona = "strategic"
	PersonaAnalytical     Persona = "analytical"
	PersonaPragmatic      Persona = "pragmatic"
	PersonaCreative       Persona = "creative"
	PersonaSupportive     Persona = "supportive"
	PersonaOther          Persona = "other"
)

// ParsePersona maps free-form tags onto the closed set. Unknown tags become PersonaOther.
func ParsePersona(s string) Persona {
	switch p := Persona(s); p {
	case PersonaDevilsAdvocate, PersonaCritic, PersonaSkeptic, PersonaStrategic,
		PersonaAnalytical, PersonaPragmatic, PersonaCreative, PersonaSupportive:
		return p
	}
	return PersonaOther
}

// Agent is read-only from the orchestrator's point of view.
type Agent struct {
	ID           int64   `json:"id,string"`
	Name         string  `json:"name"`
	Persona      Persona `json:"persona"`
	Instructions string  `json:"instructions,omitempty"`
}
