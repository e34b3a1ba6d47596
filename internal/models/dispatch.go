package models

import (
	"time"

	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/datatypes"
)

// Provenance names the backends that actually produced a result.
type Provenance struct {
	STTProvider      string `json:"stt_provider"`
	LLMProvider      string `json:"llm_provider"`
	LLMModel         string `json:"llm_model"`
	Fallback         bool   `json:"fallback"` // true when the tier's preferred list was unusable
	DetectedLanguage string `json:"detected_language,omitempty"`
}

// ProcessingResult is the terminal value of one dispatch.
type ProcessingResult struct {
	DispatchID     string     `json:"dispatch_id"`
	SessionVersion string     `json:"session_version"`
	Transcript     string     `json:"transcript"`
	OutputText     string     `json:"output_text"`
	Provenance     Provenance `json:"provenance"`
}

// DispatchJob is one end-to-end pipeline invocation as carried on the queue.
type DispatchJob struct {
	DispatchID string `json:"dispatch_id"`
	UserID     string `json:"user_id"`

	Mode           Mode   `json:"mode"`
	Tier           Tier   `json:"tier"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`

	SessionVersion string `json:"session_version"`
	MimeType       string `json:"mime_type"`
	Audio          []byte `json:"-"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// DispatchRecord is the Postgres row written for every dispatch, successful
// or not. Full texts live in the Mongo archive; this row carries the
// queryable metadata.
type DispatchRecord struct {
	ID         uint   `gorm:"primaryKey" json:"-"`
	DispatchID string `gorm:"column:dispatch_id;uniqueIndex" json:"dispatch_id"`
	UserID     string `gorm:"column:user_id;index" json:"user_id"`

	SessionVersion string `gorm:"column:session_version" json:"session_version"`
	Mode           string `gorm:"column:mode" json:"mode"`
	Tier           string `gorm:"column:tier" json:"tier"`
	SourceLanguage string `gorm:"column:source_language" json:"source_language,omitempty"`
	TargetLanguage string `gorm:"column:target_language" json:"target_language,omitempty"`

	Status     string         `gorm:"column:status" json:"status"` // done|failed|stale
	ErrorCode  string         `gorm:"column:error_code" json:"error_code,omitempty"`
	ErrorStage string         `gorm:"column:error_stage" json:"error_stage,omitempty"`
	Provenance datatypes.JSON `gorm:"column:provenance;type:jsonb" json:"provenance,omitempty"`
	Attempted  pq.StringArray `gorm:"column:attempted;type:text[]" json:"attempted,omitempty"`

	AudioURL   string    `gorm:"column:audio_url" json:"audio_url,omitempty"`
	DurationMS int64     `gorm:"column:duration_ms" json:"duration_ms"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

func (DispatchRecord) TableName() string { return "dispatch_records" }

// DispatchArchive is the Mongo document holding the full transcript and
// output text, expired by TTL index on expires_at.
type DispatchArchive struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DispatchID string             `bson:"dispatch_id" json:"dispatch_id"`
	UserID     string             `bson:"user_id" json:"user_id"`
	Mode       string             `bson:"mode" json:"mode"`

	Transcript string `bson:"transcript,omitempty" json:"transcript,omitempty"`
	OutputText string `bson:"output_text,omitempty" json:"output_text,omitempty"`
	Stale      bool   `bson:"stale,omitempty" json:"stale,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
