// Package domain contains the core domain models for the chimera service.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TrendType classifies a trend signal.
type TrendType string

const (
	TrendTopic          TrendType = "topic"
	TrendHashtag        TrendType = "hashtag"
	TrendFormat         TrendType = "format"
	TrendPlatformSignal TrendType = "platform_signal"
)

// ErrInvalidTrend is returned for trends with an unknown type or blank label.
var ErrInvalidTrend = errors.New("invalid trend")

// Valid reports whether t is one of the known trend types.
func (t TrendType) Valid() bool {
	switch t {
	case TrendTopic, TrendHashtag, TrendFormat, TrendPlatformSignal:
		return true
	default:
		return false
	}
}

// trendNamespace scopes the stable UUIDv5 trend ids.
var trendNamespace = uuid.MustParse("4f1c6d8e-2b7a-5e3d-9c0f-6a1b2c3d4e5f")

// Trend is one trend signal observed by a source.
type Trend struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	Type       TrendType      `json:"type"`
	Label      string         `json:"label"`
	ObservedAt time.Time      `json:"observed_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// TrendID returns the stable id of a trend: the same source, type and label
// (compared case- and accent-insensitively, whitespace collapsed) always map
// to the same id.
func TrendID(source string, typ TrendType, label string) string {
	key := source + "|" + string(typ) + "|" + NormalizeLabel(label)
	return uuid.NewSHA1(trendNamespace, []byte(key)).String()
}

// NormalizeLabel lowercases label, strips diacritics and collapses runs of whitespace.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(removeAccents(label)), " "))
}

func removeAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// NewTrend validates the fields and assigns the stable id.
func NewTrend(source string, typ TrendType, label string, observedAt time.Time, metadata map[string]any) (Trend, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Trend{}, fmt.Errorf("%w: label is blank", ErrInvalidTrend)
	}
	if !typ.Valid() {
		return Trend{}, fmt.Errorf("%w: unknown type %q", ErrInvalidTrend, typ)
	}
	return Trend{
		ID:         TrendID(source, typ, label),
		Source:     source,
		Type:       typ,
		Label:      label,
		ObservedAt: observedAt.UTC(),
		Metadata:   metadata,
	}, nil
}
