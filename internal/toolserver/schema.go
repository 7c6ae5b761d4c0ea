package toolserver

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// askInput is the argument shape shared by ask_database and ask_ai.
type askInput struct {
	Question string `json:"question"`
	Mode     string `json:"mode,omitempty"`
}

// askSchema advertises question plus an enumerated mode with a default.
// The data agent reads the enum and default when it builds arguments.
func askSchema(questionDesc, modeDesc, def string, modes ...string) *jsonschema.Schema {
	enum := make([]any, len(modes))
	for i, m := range modes {
		enum[i] = m
	}
	dflt, _ := json.Marshal(def)
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"question": {Type: "string", Description: questionDesc},
			"mode":     {Type: "string", Enum: enum, Default: dflt, Description: modeDesc},
		},
		Required: []string{"question"},
	}
}

func emptySchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}
