package completion

import "fmt"

// Persona is a named system prompt for the chat panel. The active persona is
// chosen once at startup and never varies per request.
type Persona struct {
	Name   string
	Prompt string
}

var personas = map[string]Persona{
	"assistant": {
		Name: "assistant",
		Prompt: "You are a helpful assistant built into a note-taking board. " +
			"Answer concisely. When the user asks about organizing their work, " +
			"suggest concrete notes they could add, with a category of " +
			"important, urgent or normal.",
	},
	"coach": {
		Name: "coach",
		Prompt: "You are an encouraging productivity coach built into a " +
			"note-taking board. Keep answers short and practical, and nudge " +
			"the user toward finishing what they already started before " +
			"adding new notes.",
	},
	"terse": {
		Name: "terse",
		Prompt: "You are a minimal assistant built into a note-taking board. " +
			"Answer in at most two sentences. Never add pleasantries.",
	},
}

// LookupPersona resolves a persona by name. The name comes from deploy-time
// configuration, so an unknown name is a configuration error.
func LookupPersona(name string) (Persona, error) {
	p, ok := personas[name]
	if !ok {
		return Persona{}, fmt.Errorf("unknown chat persona %q", name)
	}
	return p, nil
}
