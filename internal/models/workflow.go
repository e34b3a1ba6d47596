package models

import "time"

type Step string

const (
	StepAwaitingAudio          Step = "awaiting_audio"
	StepAwaitingMode           Step = "awaiting_mode"
	StepAwaitingSourceLanguage Step = "awaiting_source_language"
	StepAwaitingTargetLanguage Step = "awaiting_target_language"
	StepAwaitingOutputLanguage Step = "awaiting_output_language"
	StepDispatching            Step = "dispatching"
)

// WorkflowState is the per-user parameter-gathering dialogue preceding a
// dispatch. Step only ever advances forward through the mode's required
// sequence; back/clear discard the state rather than rewinding it.
type WorkflowState struct {
	UserID         string `json:"user_id"`
	Mode           Mode   `json:"mode"`
	Tier           Tier   `json:"tier"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
	Step           Step   `json:"step"`

	UpdatedAt time.Time `json:"updated_at"`
}
