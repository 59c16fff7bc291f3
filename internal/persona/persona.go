// Package persona loads the assistant's identity file. The file holds the system
// prompt that opens every prompt context; it is created with defaults on first run.
package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Persona mirrors the on-disk identity file.
type Persona struct {
	Identity    Identity    `json:"identity"`
	Personality Personality `json:"personality"`
}

type Identity struct {
	Name          string `json:"name"`
	PublicCreator string `json:"public_creator"`
}

type Personality struct {
	SystemPrompt string `json:"system_prompt"`
}

// Default is written when no identity file exists.
func Default() *Persona {
	return &Persona{
		Identity: Identity{
			Name:          "Lumen",
			PublicCreator: "Nonyt",
		},
		Personality: Personality{
			SystemPrompt: "You are Lumen, an AI created by Nonyt. " +
				"You are free, creative and expressive. " +
				"Answer in the language the user writes in.",
		},
	}
}

// SystemPrompt returns the prompt that seeds every conversation context.
func (p *Persona) SystemPrompt() string {
	return p.Personality.SystemPrompt
}

// Load reads the identity file at path, creating it with Default() if it does
// not exist yet.
func Load(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		p := Default()
		if err := write(path, p); err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Msg("persona file created with defaults")
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}

	var p Persona
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona file %s: %w", path, err)
	}
	if strings.TrimSpace(p.Personality.SystemPrompt) == "" {
		return nil, fmt.Errorf("persona file %s has an empty system_prompt", path)
	}
	return &p, nil
}

func write(path string, p *Persona) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create persona directory: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return fmt.Errorf("encode persona: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write persona file: %w", err)
	}
	return nil
}
