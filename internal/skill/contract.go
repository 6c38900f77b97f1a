// Package skill defines the contracts of the agent-facing skills and the
// registry that dispatches invocations to their implementations.
package skill

import (
	"slices"
	"sort"
)

// Name identifies a skill.
type Name string

const (
	FetchTrends    Name = "fetch_trends"
	GenerateVideo  Name = "generate_video"
	PublishContent Name = "publish_content"
)

// Contract is the declared interface of a skill.
type Contract struct {
	Name           Name     `json:"name"`
	Description    string   `json:"description"`
	RequiredInputs []string `json:"required_inputs"`
	OptionalInputs []string `json:"optional_inputs"`
	OutputKeys     []string `json:"output_keys"`
	// ItemKeys lists the keys of each element of a list output, if any.
	ItemKeys   []string `json:"item_keys,omitempty"`
	ErrorCodes []Code   `json:"error_codes"`
	// Readme is the path of the skill README inside the skills filesystem.
	Readme string `json:"readme"`
}

var contracts = []Contract{
	{
		Name:           FetchTrends,
		Description:    "Return current trend signals from the configured sources.",
		RequiredInputs: []string{"agent_id"},
		OptionalInputs: []string{"sources", "since", "limit"},
		OutputKeys:     []string{"trends"},
		ItemKeys:       []string{"id", "source", "type", "label", "observed_at"},
		ErrorCodes:     []Code{CodeBadRequest, CodeUnavailable},
		Readme:         "skill_fetch_trends/README.md",
	},
	{
		Name:           GenerateVideo,
		Description:    "Generate a draft for a content slot and queue it for evaluation.",
		RequiredInputs: []string{"agent_id", "slot_id", "content_type", "platform"},
		OptionalInputs: []string{"topic", "constraints", "context_refs"},
		OutputKeys:     []string{"content_id", "slot_id", "body", "evaluation_pending"},
		ErrorCodes:     []Code{CodeBadRequest, CodeUnprocessable, CodeUnavailable},
		Readme:         "skill_generate_video/README.md",
	},
	{
		Name:           PublishContent,
		Description:    "Publish an approved draft to a platform, now or at a scheduled time.",
		RequiredInputs: []string{"content_id", "agent_id", "platform"},
		OptionalInputs: []string{"scheduled_at", "idempotency_key"},
		OutputKeys:     []string{"publish_id", "content_id", "platform", "status"},
		ErrorCodes: []Code{
			CodeBadRequest, CodeNotFound, CodeConflict,
			CodeUnprocessable, CodeRateLimited, CodeUnavailable,
		},
		Readme: "skill_publish_content/README.md",
	},
}

// Contracts returns copies of all contracts in declaration order.
func Contracts() []Contract {
	out := make([]Contract, len(contracts))
	for i, c := range contracts {
		out[i] = c.clone()
	}
	return out
}

// Lookup returns the contract for name.
func Lookup(name Name) (Contract, bool) {
	for _, c := range contracts {
		if c.Name == name {
			return c.clone(), true
		}
	}
	return Contract{}, false
}

func (c Contract) clone() Contract {
	c.RequiredInputs = slices.Clone(c.RequiredInputs)
	c.OptionalInputs = slices.Clone(c.OptionalInputs)
	c.OutputKeys = slices.Clone(c.OutputKeys)
	c.ItemKeys = slices.Clone(c.ItemKeys)
	c.ErrorCodes = slices.Clone(c.ErrorCodes)
	return c
}

// Declares reports whether code is one of the contract's error codes.
func (c Contract) Declares(code Code) bool {
	return slices.Contains(c.ErrorCodes, code)
}

// CheckInput validates the set of top-level keys of a request. present maps
// each key to whether it carries a non-null value.
func (c Contract) CheckInput(present map[string]bool) error {
	for _, key := range c.RequiredInputs {
		if !present[key] {
			return BadRequest("%s is required", key)
		}
	}

	var unknown []string
	for key := range present {
		if !slices.Contains(c.RequiredInputs, key) && !slices.Contains(c.OptionalInputs, key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return BadRequest("unknown input %q", unknown[0])
	}
	return nil
}

// MissingOutputKeys returns the declared output keys absent from out.
func (c Contract) MissingOutputKeys(out map[string]any) []string {
	var missing []string
	for _, key := range c.OutputKeys {
		if _, ok := out[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}
