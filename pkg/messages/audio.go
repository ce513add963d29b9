package messages

import (
	"time"

	"github.com/go-openapi/strfmt"
)

// AudioData is an audio artifact returned by the model and attached to an assistant message.
// Vendors that store the audio server-side hand out an ID that expires.
type AudioData struct {
	ID         string          `json:"id,omitempty"`
	Data       []byte          `json:"data,omitempty"`
	Format     string          `json:"format,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	ExpiresAt  strfmt.DateTime `json:"expires_at,omitempty"`
}

// Expired reports whether the vendor-side reference is no longer usable at now.
// Audio without a reference counts as expired; a reference without an expiry never expires.
func (a *AudioData) Expired(now time.Time) bool {
	if a == nil || a.ID == "" {
		return true
	}
	exp := time.Time(a.ExpiresAt)
	if exp.IsZero() {
		return false
	}
	return !now.Before(exp)
}
