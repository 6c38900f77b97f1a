// Package generation implements generate_video: it writes a script or caption
// for a content slot, stores a storyboard manifest and saves the draft for evaluation.
package generation

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

// Brief is everything a Writer knows about the piece it writes.
type Brief struct {
	Platform        string
	ContentType     domain.ContentType
	Topic           string
	Trends          []domain.Trend
	Language        string
	Tone            string
	AspectRatio     string
	DurationSeconds int
	MaxChars        int
}

// Subject is the topic, or the trend labels when no topic was given.
func (b Brief) Subject() string {
	if b.Topic != "" {
		return b.Topic
	}
	labels := make([]string, 0, len(b.Trends))
	for _, tr := range b.Trends {
		labels = append(labels, tr.Label)
	}
	return strings.Join(labels, ", ")
}

// Hashtags returns the hashtag trends of the brief.
func (b Brief) Hashtags() []string {
	var tags []string
	for _, tr := range b.Trends {
		if tr.Type == domain.TrendHashtag {
			tags = append(tags, tr.Label)
		}
	}
	return tags
}

// Scene is one shot of a storyboard.
type Scene struct {
	Index           int    `json:"index"`
	StartSeconds    int    `json:"start_seconds"`
	DurationSeconds int    `json:"duration_seconds"`
	Visual          string `json:"visual"`
	Narration       string `json:"narration,omitempty"`
	OnScreenText    string `json:"on_screen_text,omitempty"`
}

// Script is a Writer's output.
type Script struct {
	Text   string
	Scenes []Scene
}

// Writer produces the text and scenes of a draft.
type Writer interface {
	Name() string
	Write(ctx context.Context, b Brief) (Script, error)
}

// Truncate cuts text to at most limit characters, preferring a word boundary
// and marking the cut with an ellipsis.
func Truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	if limit == 1 {
		return "…"
	}

	runes := []rune(text)
	cut := string(runes[:limit-1])
	if unicode.IsSpace(runes[limit-1]) {
		return strings.TrimRight(cut, " \n\t.,;:") + "…"
	}
	if i := strings.LastIndexAny(cut, " \n\t"); i > len(cut)*3/4 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \n\t.,;:") + "…"
}

// timeScenes spreads total seconds over the scenes in order. The last scene
// absorbs the remainder so that durations add up to total.
func timeScenes(scenes []Scene, total int) []Scene {
	if len(scenes) == 0 {
		return scenes
	}
	if total <= 0 {
		for i := range scenes {
			scenes[i].Index = i + 1
			scenes[i].StartSeconds = 0
			scenes[i].DurationSeconds = 0
		}
		return scenes
	}

	each := max(total/len(scenes), 1)
	start := 0
	for i := range scenes {
		scenes[i].Index = i + 1
		scenes[i].StartSeconds = start
		d := each
		if i == len(scenes)-1 {
			d = max(total-start, 1)
		}
		scenes[i].DurationSeconds = d
		start += d
	}
	return scenes
}
