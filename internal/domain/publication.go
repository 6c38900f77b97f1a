package domain

import (
	"time"
)

// PublicationStatus represents the state of a publication in the outbox.
type PublicationStatus string

const (
	PublicationQueued     PublicationStatus = "queued"
	PublicationScheduled  PublicationStatus = "scheduled"
	PublicationPublishing PublicationStatus = "publishing"
	PublicationPublished  PublicationStatus = "published"
	PublicationFailed     PublicationStatus = "failed"
)

// DefaultPublicationMaxRetries bounds dispatch attempts per publication.
const DefaultPublicationMaxRetries = 5

// Publication is a request to publish a draft on a platform.
type Publication struct {
	ID             string            `db:"id"              json:"publish_id"`
	ContentID      string            `db:"content_id"      json:"content_id"`
	AgentID        string            `db:"agent_id"        json:"agent_id"`
	Platform       string            `db:"platform"        json:"platform"`
	Status         PublicationStatus `db:"status"          json:"status"`
	ScheduledAt    *time.Time        `db:"scheduled_at"    json:"scheduled_at,omitempty"`
	IdempotencyKey *string           `db:"idempotency_key" json:"idempotency_key,omitempty"`
	RetryCount     int               `db:"retry_count"     json:"retry_count"`
	MaxRetries     int               `db:"max_retries"     json:"max_retries"`
	ErrorMessage   *string           `db:"error_message"   json:"error_message,omitempty"`
	NextRetryAt    *time.Time        `db:"next_retry_at"   json:"next_retry_at,omitempty"`
	PublishedAt    *time.Time        `db:"published_at"    json:"published_at,omitempty"`
	CreatedAt      time.Time         `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"      json:"updated_at"`
}

// Channel returns the Redis channel the platform adapter listens on.
func (p *Publication) Channel() string {
	return "social:publish:" + p.Platform
}

// SameRequest reports whether a replayed request matches this publication.
func (p *Publication) SameRequest(contentID, platform string, scheduledAt *time.Time) bool {
	if p.ContentID != contentID || p.Platform != platform {
		return false
	}
	switch {
	case p.ScheduledAt == nil && scheduledAt == nil:
		return true
	case p.ScheduledAt == nil || scheduledAt == nil:
		return false
	default:
		return p.ScheduledAt.Equal(*scheduledAt)
	}
}

// ToPublishMessage converts to the message format platform adapters consume.
func (p *Publication) ToPublishMessage(d *Draft) map[string]any {
	return map[string]any{
		"publish_id":   p.ID,
		"content_id":   p.ContentID,
		"agent_id":     p.AgentID,
		"platform":     p.Platform,
		"scheduled_at": p.ScheduledAt,
		"attempt":      p.RetryCount + 1,
		"content": map[string]any{
			"content_type": d.ContentType,
			"text":         d.BodyText,
			"media_uri":    d.MediaURI,
			"metadata":     d.Metadata,
		},
		"publisher": map[string]any{
			"dispatched_at": time.Now().UTC().Format(time.RFC3339),
			"channel":       p.Channel(),
		},
	}
}

// OutboxStats holds publication outbox statistics for monitoring.
type OutboxStats struct {
	Queued          int64 `json:"queued"`
	Scheduled       int64 `json:"scheduled"`
	Publishing      int64 `json:"publishing"`
	Published       int64 `json:"published"`
	FailedRetryable int64 `json:"failed_retryable"`
	FailedExhausted int64 `json:"failed_exhausted"`
}
