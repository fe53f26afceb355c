package booking

import "github.com/sashabaranov/go-openai/jsonschema"

// Tool is the function declaration sent to the AI leg in session.update.
type Tool struct {
	Type        string                `json:"type"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Parameters  jsonschema.Definition `json:"parameters"`
}

func ToolDefinition() Tool {
	return Tool{
		Type:        "function",
		Name:        ToolName,
		Description: "Book an appointment for the caller at the clinic. Call this once the caller has confirmed their name and preferred start time.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"patient_name": {
					Type:        jsonschema.String,
					Description: "Full name of the patient.",
				},
				"patient_phone": {
					Type:        jsonschema.String,
					Description: "Contact phone number of the patient.",
				},
				"patient_email": {
					Type:        jsonschema.String,
					Description: "Contact email address of the patient.",
				},
				"start_time_iso": {
					Type:        jsonschema.String,
					Description: "Requested appointment start time in ISO-8601 format, for example 2025-03-01T14:00:00Z.",
				},
				"appointment_type": {
					Type:        jsonschema.String,
					Description: "Kind of appointment, for example cleaning or consultation.",
				},
				"notes": {
					Type:        jsonschema.String,
					Description: "Anything else the caller mentioned that staff should know.",
				},
			},
			Required: []string{"patient_name", "start_time_iso"},
		},
	}
}
