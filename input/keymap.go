// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package input

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/playgrid/playgrid/engine"
)

// Keymap maps reaction symbols (emoji) to control commands. The same
// map drives two directions: translating incoming reactions, and
// seeding the control reactions on a fresh display message.
type Keymap map[string]engine.Command

// DefaultKeymap returns the built-in reaction bindings.
func DefaultKeymap() Keymap {
	return Keymap{
		"⬆️": engine.Forward,
		"⬇️": engine.Backward,
		"⬅️": engine.TurnLeft,
		"➡️": engine.TurnRight,
		"🔫": engine.Fire,
		"✋": engine.Use,
		"🔄": engine.SwitchWeapon,
	}
}

// Symbols returns the keymap's reaction symbols in command order
// (forward, backward, turn-left, turn-right, fire, use,
// switch-weapon), which is the order they are seeded onto a display
// message.
func (k Keymap) Symbols() []string {
	ordered := make([]string, 0, len(k))
	for command := engine.Forward; command <= engine.SwitchWeapon; command++ {
		for symbol, mapped := range k {
			if mapped == command {
				ordered = append(ordered, symbol)
				break
			}
		}
	}
	return ordered
}

// commandsByName maps the wire names accepted in keymap files.
var commandsByName = map[string]engine.Command{
	"forward":       engine.Forward,
	"backward":      engine.Backward,
	"turn-left":     engine.TurnLeft,
	"turn-right":    engine.TurnRight,
	"fire":          engine.Fire,
	"use":           engine.Use,
	"switch-weapon": engine.SwitchWeapon,
}

// LoadKeymap reads a keymap file: a JSONC object mapping reaction
// symbols to command names, e.g.
//
//	{
//	  // WASD-style movement
//	  "🔼": "forward",
//	  "🔽": "backward",
//	}
//
// Comments and trailing commas are allowed. Every one of the seven
// commands must be bound exactly once.
func LoadKeymap(path string) (Keymap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("input: reading keymap: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("input: parsing keymap %s: %w", path, err)
	}

	keymap := make(Keymap, len(raw))
	bound := make(map[engine.Command]string, len(raw))
	for symbol, name := range raw {
		command, ok := commandsByName[name]
		if !ok {
			return nil, fmt.Errorf("input: keymap %s: unknown command %q for symbol %q", path, name, symbol)
		}
		if previous, dup := bound[command]; dup {
			return nil, fmt.Errorf("input: keymap %s: command %q bound to both %q and %q", path, name, previous, symbol)
		}
		bound[command] = symbol
		keymap[symbol] = command
	}

	for name, command := range commandsByName {
		if _, ok := bound[command]; !ok {
			return nil, fmt.Errorf("input: keymap %s: command %q is not bound", path, name)
		}
	}
	return keymap, nil
}
