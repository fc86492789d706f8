package preset

// DefaultID names the preset that seeds no system turn.
const DefaultID = "default"

// Preset is a named system prompt that may seed a new conversation.
type Preset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	System      string `json:"system,omitempty"`
}

// Seed provides the built-in presets.
func Seed() []Preset {
	return []Preset{
		{
			ID:          DefaultID,
			Name:        "DeepSeek-V3",
			Description: "No system prompt; the model's own defaults apply.",
		},
		{
			ID:          "geography",
			Name:        "Geography tutor",
			Description: "Answers with a focus on places, maps and physical geography.",
			System:      "You are a helpful assistant specializing in geography.",
		},
		{
			ID:          "concise",
			Name:        "Concise",
			Description: "Short, direct answers without preamble.",
			System:      "You are a helpful assistant. Answer as briefly as possible while staying correct.",
		},
		{
			ID:          "coder",
			Name:        "Go reviewer",
			Description: "Reviews and writes idiomatic Go.",
			System:      "You are an experienced Go engineer. Prefer idiomatic, well-tested code and explain trade-offs briefly.",
		},
	}
}
