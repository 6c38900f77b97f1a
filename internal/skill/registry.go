package skill

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
)

// ErrUnknownSkill is returned by Registry.Invoke for names without a contract.
var ErrUnknownSkill = errors.New("unknown skill")

// Handler implements one skill. Input is the raw JSON object already checked
// against the contract's key sets.
type Handler interface {
	Skill() Name
	Invoke(ctx context.Context, input []byte) (any, error)
}

// Observer receives one observation per invocation.
type Observer interface {
	ObserveSkill(name string, code string, elapsed time.Duration)
}

// Registry dispatches invocations to handlers and enforces the contracts.
type Registry struct {
	handlers map[Name]Handler
	observer Observer
	logger   logger.Logger
}

// NewRegistry registers handlers. A contract without a handler answers 503.
func NewRegistry(log logger.Logger, observer Observer, handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[Name]Handler, len(handlers)), observer: observer, logger: log}
	for _, h := range handlers {
		r.handlers[h.Skill()] = h
	}
	return r
}

// Enabled reports whether name has a handler.
func (r *Registry) Enabled(name Name) bool {
	_, ok := r.handlers[name]
	return ok
}

// Invoke runs a skill. Every returned error other than ErrUnknownSkill is a
// *Error carrying one of the skill's declared codes.
func (r *Registry) Invoke(ctx context.Context, name Name, body []byte) (any, error) {
	c, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSkill, name)
	}

	start := time.Now()
	out, err := r.invoke(ctx, c, body)
	serr := Normalize(c, err)

	code := "200"
	if serr != nil {
		code = string(serr.Code)
		fields := []logger.Field{
			logger.String("skill", string(name)),
			logger.String("code", code),
			logger.String("message", serr.Message),
		}
		if serr.Err != nil {
			fields = append(fields, logger.Error(serr.Err))
		}
		log := logger.FromContextOr(ctx, r.logger)
		if serr.Code == CodeUnavailable {
			log.Error("Skill invocation failed", fields...)
		} else {
			log.Info("Skill invocation rejected", fields...)
		}
	}
	if r.observer != nil {
		r.observer.ObserveSkill(string(name), code, time.Since(start))
	}

	if serr != nil {
		return nil, serr
	}
	return out, nil
}

func (r *Registry) invoke(ctx context.Context, c Contract, body []byte) (any, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, BadRequest("request body must be a JSON object")
	}

	present := make(map[string]bool, len(raw))
	for key, val := range raw {
		present[key] = !bytes.Equal(bytes.TrimSpace(val), []byte("null"))
	}
	if err := c.CheckInput(present); err != nil {
		return nil, err
	}

	h, ok := r.handlers[c.Name]
	if !ok {
		return nil, Unavailable(nil, "skill %s not enabled", c.Name)
	}
	return h.Invoke(ctx, body)
}

// DecodeInput decodes a checked request body into dst, rejecting unknown
// nested fields and wrongly typed values with 400.
func DecodeInput(body []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "input"
		}
		return BadRequest("%s must be %s", field, jsonKind(typeErr.Type.Kind().String()))
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return BadRequest("unknown input %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
	default:
		return BadRequest("malformed input: %v", err)
	}
}

func jsonKind(goKind string) string {
	switch goKind {
	case "string":
		return "a string"
	case "slice", "array":
		return "a list"
	case "map", "struct", "ptr":
		return "an object"
	case "bool":
		return "a boolean"
	default:
		return "a number"
	}
}
