package llm

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Capability is a set of model features.
type Capability uint8

const (
	CapText Capability = 1 << iota
	CapVision
)

// Has reports whether every flag in want is set.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

func (c Capability) String() string {
	var parts []string
	if c.Has(CapText) {
		parts = append(parts, "text")
	}
	if c.Has(CapVision) {
		parts = append(parts, "vision")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// multimodalFamilies are model name fragments known to accept image input.
var multimodalFamilies = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4.1",
	"gpt-4.1-mini",
	"claude-3.5",
	"qwen2-vl",
	"gpt-vision",
}

type familyEntry struct {
	fragment string
	caps     Capability
}

// CapabilityRegistry maps model identifiers to capability sets. Exact entries win
// over family fragments; unknown models are text-only.
type CapabilityRegistry struct {
	exact    map[string]Capability
	families []familyEntry
}

// NewCapabilityRegistry returns a registry seeded with the built-in multimodal families.
func NewCapabilityRegistry() *CapabilityRegistry {
	r := &CapabilityRegistry{exact: make(map[string]Capability)}
	for _, f := range multimodalFamilies {
		r.RegisterFamily(f, CapText|CapVision)
	}
	return r
}

// Register sets the capabilities of one exact model id (case-insensitive).
func (r *CapabilityRegistry) Register(model string, caps Capability) {
	key := strings.ToLower(strings.TrimSpace(model))
	if prev, exists := r.exact[key]; exists {
		log.Warn().Str("model", key).Stringer("previous", prev).Stringer("caps", caps).Msg("overwriting model capabilities")
	}
	r.exact[key] = caps
}

// RegisterFamily applies caps to every model whose id contains fragment.
func (r *CapabilityRegistry) RegisterFamily(fragment string, caps Capability) {
	r.families = append(r.families, familyEntry{fragment: strings.ToLower(fragment), caps: caps})
}

// Resolve returns the capabilities of model.
func (r *CapabilityRegistry) Resolve(model string) Capability {
	name := strings.ToLower(strings.TrimSpace(model))
	if caps, ok := r.exact[name]; ok {
		return caps
	}
	for _, f := range r.families {
		if strings.Contains(name, f.fragment) {
			return f.caps
		}
	}
	return CapText
}

// LoadOverrides parses "model=text+vision;other=text" and registers each entry.
func (r *CapabilityRegistry) LoadOverrides(overrides string) error {
	for _, entry := range strings.Split(overrides, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		model, flags, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(model) == "" {
			return fmt.Errorf("malformed capability entry %q (expected model=flags)", entry)
		}
		caps, err := parseFlags(flags)
		if err != nil {
			return fmt.Errorf("capability entry %q: %w", entry, err)
		}
		r.Register(model, caps)
	}
	return nil
}

func parseFlags(s string) (Capability, error) {
	var caps Capability
	for _, f := range strings.Split(s, "+") {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "text":
			caps |= CapText
		case "vision":
			caps |= CapVision
		case "":
		default:
			return 0, fmt.Errorf("unknown capability %q", f)
		}
	}
	if caps == 0 {
		return 0, fmt.Errorf("no capabilities given")
	}
	return caps, nil
}
