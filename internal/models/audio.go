package models

import "time"

// AudioSession is the retained per-user audio payload awaiting one or more
// dispatches. It is never mutated after creation, only replaced wholesale by
// a new upload. Version is rotated on every replacement so that in-flight
// results for a superseded clip can be recognized and discarded.
type AudioSession struct {
	UserID     string    `json:"user_id"`
	Data       []byte    `json:"-"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	Version    string    `json:"version"` // uuid v4
	ReceivedAt time.Time `json:"received_at"`
}
