package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

// WriterAnthropicName is the name recorded in draft metadata.
const WriterAnthropicName = "anthropic"

// ErrEmptyCompletion is returned when the model answers without text.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

const systemPrompt = `You write short-form social content for a publishing agent.
Answer with a single JSON object and nothing else:
{"text": "<caption or script>", "scenes": [{"visual": "...", "narration": "...", "on_screen_text": "...", "duration_seconds": 5}]}
Leave "scenes" empty for text posts. Use one scene for images.`

// AnthropicConfig configures NewAnthropicWriter.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	MaxRetries int
	Timeout    time.Duration
}

// AnthropicWriter asks Claude for the script through the Messages API.
type AnthropicWriter struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewAnthropicWriter creates the writer.
func NewAnthropicWriter(cfg AnthropicConfig) *AnthropicWriter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicWriter{
		client:    &client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}
}

// Name implements Writer.
func (w *AnthropicWriter) Name() string { return WriterAnthropicName }

type completion struct {
	Text   string `json:"text"`
	Scenes []struct {
		Visual          string `json:"visual"`
		Narration       string `json:"narration"`
		OnScreenText    string `json:"on_screen_text"`
		DurationSeconds int    `json:"duration_seconds"`
	} `json:"scenes"`
}

// Write implements Writer.
func (w *AnthropicWriter) Write(ctx context.Context, b Brief) (Script, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	// Prefill "{" so the model continues a JSON object.
	message, err := w.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(w.model),
		MaxTokens: int64(w.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(b))),
			anthropic.NewAssistantMessage(anthropic.NewTextBlock("{")),
		},
	})
	if err != nil {
		return Script{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		return Script{}, ErrEmptyCompletion
	}

	return parseCompletion("{"+text, b)
}

func parseCompletion(raw string, b Brief) (Script, error) {
	// Models sometimes trail the object with prose.
	if end := strings.LastIndex(raw, "}"); end >= 0 {
		raw = raw[:end+1]
	}

	var c completion
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Script{}, fmt.Errorf("parse completion: %w", err)
	}
	if strings.TrimSpace(c.Text) == "" {
		return Script{}, ErrEmptyCompletion
	}

	script := Script{Text: strings.TrimSpace(c.Text)}
	if b.ContentType == domain.ContentText {
		return script, nil
	}

	for _, s := range c.Scenes {
		script.Scenes = append(script.Scenes, Scene{
			Visual:          s.Visual,
			Narration:       s.Narration,
			OnScreenText:    s.OnScreenText,
			DurationSeconds: s.DurationSeconds,
		})
	}
	if len(script.Scenes) == 0 {
		script.Scenes = []Scene{{Visual: "Presenter to camera", Narration: script.Text}}
	}

	total := b.DurationSeconds
	if !b.ContentType.IsVideo() {
		total = 0
		script.Scenes = script.Scenes[:1]
	}
	script.Scenes = timeScenes(script.Scenes, total)
	return script, nil
}

func buildPrompt(b Brief) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Platform: %s\n", b.Platform)
	fmt.Fprintf(&sb, "Content type: %s\n", b.ContentType)
	fmt.Fprintf(&sb, "Subject: %s\n", b.Subject())
	fmt.Fprintf(&sb, "Language: %s\nTone: %s\n", b.Language, b.Tone)
	if b.AspectRatio != "" {
		fmt.Fprintf(&sb, "Aspect ratio: %s\n", b.AspectRatio)
	}
	if b.DurationSeconds > 0 {
		fmt.Fprintf(&sb, "Total duration: %d seconds\n", b.DurationSeconds)
	}
	if b.MaxChars > 0 {
		fmt.Fprintf(&sb, "The text must not exceed %d characters.\n", b.MaxChars)
	}
	if len(b.Trends) > 0 {
		sb.WriteString("Current trends to draw on:\n")
		for _, tr := range b.Trends {
			fmt.Fprintf(&sb, "- [%s] %s (from %s)\n", tr.Type, tr.Label, tr.Source)
		}
	}
	return sb.String()
}
