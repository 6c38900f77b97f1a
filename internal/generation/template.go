package generation

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

// WriterTemplateName is the name recorded in draft metadata.
const WriterTemplateName = "template"

var openers = map[string]string{
	"informative": "Here is what you need to know about",
	"playful":     "Okay, let's talk about",
	"urgent":      "Right now, everyone is watching",
	"inspiring":   "This is your sign to look at",
}

const videoTemplate = `{{.Opener}} {{.Subject}}.
{{range .Beats}}
- {{.}}{{end}}

{{.Close}}{{if .Tags}} {{.Tags}}{{end}}`

const postTemplate = `{{.Opener}} {{.Subject}}.{{range .Beats}} {{.}}.{{end}} {{.Close}}{{if .Tags}} {{.Tags}}{{end}}`

// TemplateWriter builds drafts from fixed templates without any network call.
// The same brief always yields the same script.
type TemplateWriter struct {
	video *template.Template
	post  *template.Template
}

// NewTemplateWriter parses the built-in templates.
func NewTemplateWriter() *TemplateWriter {
	return &TemplateWriter{
		video: template.Must(template.New("video").Parse(videoTemplate)),
		post:  template.Must(template.New("post").Parse(postTemplate)),
	}
}

// Name implements Writer.
func (w *TemplateWriter) Name() string { return WriterTemplateName }

type templateData struct {
	Opener  string
	Subject string
	Beats   []string
	Close   string
	Tags    string
}

// Write implements Writer.
func (w *TemplateWriter) Write(ctx context.Context, b Brief) (Script, error) {
	if err := ctx.Err(); err != nil {
		return Script{}, err
	}

	opener, ok := openers[strings.ToLower(b.Tone)]
	if !ok {
		opener = openers["informative"]
	}
	data := templateData{
		Opener:  opener,
		Subject: b.Subject(),
		Beats:   beats(b),
		Close:   closing(b.ContentType),
		Tags:    strings.Join(b.Hashtags(), " "),
	}

	tmpl := w.post
	if b.ContentType.IsVideo() {
		tmpl = w.video
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Script{}, fmt.Errorf("render %s template: %w", tmpl.Name(), err)
	}

	return Script{Text: buf.String(), Scenes: storyboard(b, data)}, nil
}

func beats(b Brief) []string {
	var out []string
	for _, tr := range b.Trends {
		if tr.Type == domain.TrendHashtag {
			continue
		}
		if b.Topic == "" || !strings.EqualFold(tr.Label, b.Topic) {
			out = append(out, fmt.Sprintf("Why %s matters right now", tr.Label))
		}
	}
	if len(out) == 0 {
		out = append(out, "The one thing most people miss")
	}
	return out
}

func closing(ct domain.ContentType) string {
	if ct.IsVideo() {
		return "Follow for the next part."
	}
	return "What do you think?"
}

func storyboard(b Brief, data templateData) []Scene {
	switch {
	case b.ContentType.IsVideo():
		scenes := []Scene{{
			Visual:       "Close-up hook shot introducing " + data.Subject,
			Narration:    data.Opener + " " + data.Subject + ".",
			OnScreenText: data.Subject,
		}}
		for _, beat := range data.Beats {
			scenes = append(scenes, Scene{Visual: "B-roll illustrating the point", Narration: beat + ".", OnScreenText: beat})
		}
		scenes = append(scenes, Scene{Visual: "Presenter to camera", Narration: data.Close, OnScreenText: data.Tags})
		return timeScenes(scenes, b.DurationSeconds)
	case b.ContentType == domain.ContentImage:
		return timeScenes([]Scene{{Visual: "Single still framed " + b.AspectRatio + " about " + data.Subject, OnScreenText: data.Subject}}, 0)
	default:
		return nil
	}
}
