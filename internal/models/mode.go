package models

type Mode string

const (
	ModeTranscript        Mode = "transcript"
	ModeLectureDocument   Mode = "lecture-document"
	ModeClinicalNote      Mode = "clinical-note"
	ModeSummaryBrief      Mode = "summary-brief"
	ModeSummaryDetailed   Mode = "summary-detailed"
	ModeLyrics            Mode = "lyrics"
	ModeTranslateQuick    Mode = "translate-quick"
	ModeTranslateDetailed Mode = "translate-detailed"
)

type Tier string

const (
	TierFast    Tier = "fast"
	TierComplex Tier = "complex"
)

// LanguageRequirement declares which language parameters a mode must gather
// before it can dispatch.
type LanguageRequirement int

const (
	// LangNone: the mode needs no language choice (output follows the audio).
	LangNone LanguageRequirement = iota
	// LangOutput: one output language, either picked by the user or derived
	// from the detected language of the transcript.
	LangOutput
	// LangSourceTarget: a source and a target language, never equal.
	LangSourceTarget
)

type ModeSpec struct {
	ID          Mode   `json:"id"`
	Label       string `json:"label"`
	Languages   LanguageRequirement
	Tiers       []Tier `json:"tiers"`
	DefaultTier Tier   `json:"default_tier"`
}

func (s ModeSpec) AllowsTier(t Tier) bool {
	for _, x := range s.Tiers {
		if x == t {
			return true
		}
	}
	return false
}

var modeCatalog = []ModeSpec{
	{ID: ModeTranscript, Label: "Transcript", Languages: LangNone, Tiers: []Tier{TierFast, TierComplex}, DefaultTier: TierFast},
	{ID: ModeLectureDocument, Label: "Lecture Document", Languages: LangOutput, Tiers: []Tier{TierComplex}, DefaultTier: TierComplex},
	{ID: ModeClinicalNote, Label: "Clinical SOAP Note", Languages: LangNone, Tiers: []Tier{TierComplex}, DefaultTier: TierComplex},
	{ID: ModeSummaryBrief, Label: "Brief Summary", Languages: LangOutput, Tiers: []Tier{TierFast}, DefaultTier: TierFast},
	{ID: ModeSummaryDetailed, Label: "Detailed Summary", Languages: LangOutput, Tiers: []Tier{TierFast, TierComplex}, DefaultTier: TierComplex},
	{ID: ModeLyrics, Label: "Lyrics", Languages: LangNone, Tiers: []Tier{TierFast}, DefaultTier: TierFast},
	{ID: ModeTranslateQuick, Label: "Quick Translation", Languages: LangSourceTarget, Tiers: []Tier{TierFast}, DefaultTier: TierFast},
	{ID: ModeTranslateDetailed, Label: "Detailed Translation", Languages: LangSourceTarget, Tiers: []Tier{TierComplex}, DefaultTier: TierComplex},
}

func Modes() []ModeSpec { return modeCatalog }

func ModeByID(id string) (ModeSpec, bool) {
	for _, m := range modeCatalog {
		if string(m.ID) == id {
			return m, true
		}
	}
	return ModeSpec{}, false
}
