package workflow

// Action is the decoded kind of an inbound selection event. Transport
// payloads are decoded into an Event exactly once, at the API boundary;
// nothing below this package parses strings.
type Action string

const (
	ActionMode     Action = "mode"
	ActionLanguage Action = "language"
	ActionTier     Action = "tier"
	ActionBack     Action = "back"
	ActionClear    Action = "clear"
)

// Event is one inbound selection event for a user's workflow.
type Event struct {
	Action   Action `json:"action"`
	Mode     string `json:"mode,omitempty"`
	Language string `json:"language,omitempty"` // source or target, per current step
	Tier     string `json:"tier,omitempty"`
}
