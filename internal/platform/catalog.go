// Package platform holds the catalog of publishing platforms and their limits.
package platform

import (
	"slices"
	"sort"

	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

const (
	YouTube   = "youtube"
	TikTok    = "tiktok"
	Instagram = "instagram"
	X         = "x"
	LinkedIn  = "linkedin"
)

// Spec describes what a platform accepts.
type Spec struct {
	Name         string
	ContentTypes []domain.ContentType
	// MaxSeconds is the longest accepted video per content type.
	MaxSeconds      map[domain.ContentType]int
	MaxCaptionChars int
	AspectRatios    []string
}

// Supports reports whether the platform accepts content type ct.
func (s Spec) Supports(ct domain.ContentType) bool {
	return slices.Contains(s.ContentTypes, ct)
}

// AcceptsAspectRatio reports whether ratio is accepted.
func (s Spec) AcceptsAspectRatio(ratio string) bool {
	return slices.Contains(s.AspectRatios, ratio)
}

// DefaultAspectRatio returns the preferred ratio for ct.
func (s Spec) DefaultAspectRatio(ct domain.ContentType) string {
	if ct == domain.ContentShortVideo && s.AcceptsAspectRatio("9:16") {
		return "9:16"
	}
	return s.AspectRatios[0]
}

// MaxDuration returns the video length limit for ct, or 0 when ct has no duration.
func (s Spec) MaxDuration(ct domain.ContentType) int {
	if !ct.IsVideo() {
		return 0
	}
	return s.MaxSeconds[ct]
}

var catalog = map[string]Spec{
	YouTube: {
		Name:            YouTube,
		ContentTypes:    []domain.ContentType{domain.ContentVideo, domain.ContentShortVideo},
		MaxSeconds:      map[domain.ContentType]int{domain.ContentVideo: 43200, domain.ContentShortVideo: 60},
		MaxCaptionChars: 5000,
		AspectRatios:    []string{"16:9", "9:16"},
	},
	TikTok: {
		Name:            TikTok,
		ContentTypes:    []domain.ContentType{domain.ContentShortVideo, domain.ContentVideo},
		MaxSeconds:      map[domain.ContentType]int{domain.ContentVideo: 600, domain.ContentShortVideo: 600},
		MaxCaptionChars: 2200,
		AspectRatios:    []string{"9:16"},
	},
	Instagram: {
		Name:            Instagram,
		ContentTypes:    []domain.ContentType{domain.ContentShortVideo, domain.ContentImage},
		MaxSeconds:      map[domain.ContentType]int{domain.ContentShortVideo: 90},
		MaxCaptionChars: 2200,
		AspectRatios:    []string{"9:16", "1:1", "4:5"},
	},
	X: {
		Name:            X,
		ContentTypes:    []domain.ContentType{domain.ContentText, domain.ContentImage, domain.ContentVideo},
		MaxSeconds:      map[domain.ContentType]int{domain.ContentVideo: 140},
		MaxCaptionChars: 280,
		AspectRatios:    []string{"16:9", "1:1"},
	},
	LinkedIn: {
		Name:            LinkedIn,
		ContentTypes:    []domain.ContentType{domain.ContentText, domain.ContentImage, domain.ContentVideo},
		MaxSeconds:      map[domain.ContentType]int{domain.ContentVideo: 600},
		MaxCaptionChars: 3000,
		AspectRatios:    []string{"16:9", "1:1"},
	},
}

// Lookup returns the spec of a platform.
func Lookup(name string) (Spec, bool) {
	s, ok := catalog[name]
	return s, ok
}

// Names returns every platform name, sorted.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
