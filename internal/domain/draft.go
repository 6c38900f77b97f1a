package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ContentType is the kind of content a draft holds.
type ContentType string

const (
	ContentVideo      ContentType = "video"
	ContentShortVideo ContentType = "short_video"
	ContentImage      ContentType = "image"
	ContentText       ContentType = "text"
)

// ContentTypes lists every content type.
var ContentTypes = []ContentType{ContentVideo, ContentShortVideo, ContentImage, ContentText}

// Valid reports whether c is a known content type.
func (c ContentType) Valid() bool {
	for _, ct := range ContentTypes {
		if c == ct {
			return true
		}
	}
	return false
}

// IsVideo reports whether c has a duration.
func (c ContentType) IsVideo() bool {
	return c == ContentVideo || c == ContentShortVideo
}

// DraftStatus is the evaluation state of a draft.
type DraftStatus string

const (
	DraftPendingEvaluation DraftStatus = "pending_evaluation"
	DraftApproved          DraftStatus = "approved"
	DraftRejected          DraftStatus = "rejected"
)

// Valid reports whether s is a known draft status.
func (s DraftStatus) Valid() bool {
	return s == DraftPendingEvaluation || s == DraftApproved || s == DraftRejected
}

// Metadata is a JSON object stored in a JSONB column.
type Metadata map[string]any

// Value implements driver.Valuer. lib/pq sends []byte as bytea, so the JSON goes out as text.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan metadata: unsupported type %T", src)
	}
	out := Metadata{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("scan metadata: %w", err)
	}
	*m = out
	return nil
}

// Draft is generated content awaiting evaluation and publication.
type Draft struct {
	ID          string         `db:"id"           json:"content_id"`
	AgentID     string         `db:"agent_id"     json:"agent_id"`
	SlotID      string         `db:"slot_id"      json:"slot_id"`
	ContentType ContentType    `db:"content_type" json:"content_type"`
	Platform    string         `db:"platform"     json:"platform"`
	Topic       string         `db:"topic"        json:"topic"`
	BodyText    string         `db:"body_text"    json:"text"`
	MediaURI    string         `db:"media_uri"    json:"media_uri"`
	Metadata    Metadata       `db:"metadata"     json:"metadata"`
	ContextRefs pq.StringArray `db:"context_refs" json:"context_refs"`
	Status      DraftStatus    `db:"status"       json:"status"`
	Reviewer    *string        `db:"reviewer"     json:"reviewer,omitempty"`
	ReviewNotes *string        `db:"review_notes" json:"review_notes,omitempty"`
	EvaluatedAt *time.Time     `db:"evaluated_at" json:"evaluated_at,omitempty"`
	CreatedAt   time.Time      `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"   json:"updated_at"`
}

// Publishable returns nil when the draft may be handed to a platform.
func (d *Draft) Publishable() error {
	switch d.Status {
	case DraftApproved:
		return nil
	case DraftPendingEvaluation:
		return ErrDraftPending
	case DraftRejected:
		return ErrDraftRejected
	default:
		return fmt.Errorf("draft %s has unknown status %q", d.ID, d.Status)
	}
}

// Evaluation is a reviewer's decision on a pending draft.
type Evaluation struct {
	Decision DraftStatus `json:"decision"`
	Reviewer string      `json:"reviewer"`
	Notes    string      `json:"notes"`
}

// ErrInvalidEvaluation is returned for decisions other than approved or rejected.
var ErrInvalidEvaluation = errors.New("decision must be approved or rejected")

// Validate checks the decision.
func (e Evaluation) Validate() error {
	if e.Decision != DraftApproved && e.Decision != DraftRejected {
		return ErrInvalidEvaluation
	}
	return nil
}

// DraftFilter narrows a draft listing.
type DraftFilter struct {
	AgentID string
	Status  DraftStatus
	Limit   int
	Offset  int
}
