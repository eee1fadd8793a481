// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine defines the boundary to the game simulation engine.
//
// The engine is an external collaborator: Playgrid drives it through
// the narrow Engine interface and never reaches into simulation
// internals. One Engine instance backs exactly one session and is
// never advanced concurrently with itself; the update scheduler is
// the sole caller of Advance.
//
// The package also provides Demo, a small deterministic engine used by
// tests and the local preview binary. Demo is not a game; it exists so
// the orchestration layer can be exercised end to end without a real
// simulation binary attached.
package engine

import (
	"context"
	"time"
)

// Command is one discrete control input. The set is fixed: it mirrors
// the seven reactions seeded on a session's display message.
type Command uint8

const (
	// Forward moves the player forward.
	Forward Command = iota
	// Backward moves the player backward.
	Backward
	// TurnLeft rotates the view left.
	TurnLeft
	// TurnRight rotates the view right.
	TurnRight
	// Fire attacks with the current weapon.
	Fire
	// Use interacts with whatever is in front of the player.
	Use
	// SwitchWeapon cycles to the next weapon.
	SwitchWeapon

	numCommands
)

// String returns the command's wire name.
func (c Command) String() string {
	switch c {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case TurnLeft:
		return "turn-left"
	case TurnRight:
		return "turn-right"
	case Fire:
		return "fire"
	case Use:
		return "use"
	case SwitchWeapon:
		return "switch-weapon"
	default:
		return "unknown"
	}
}

// HUD carries the engine-exposed status variables rendered beneath
// the grid.
type HUD struct {
	Health int
	Armor  int
	Ammo   int
	Weapon int
}

// weaponNames maps engine weapon slots to display names.
var weaponNames = map[int]string{
	1: "Fist",
	2: "Pistol",
	3: "Shotgun",
	4: "Chaingun",
	5: "Rocket",
	6: "Plasma",
	7: "BFG9000",
}

// WeaponName returns the display name for the HUD's weapon slot.
func (h HUD) WeaponName() string {
	if name, ok := weaponNames[h.Weapon]; ok {
		return name
	}
	return "Unknown"
}

// Frame is one rendered simulation frame: a row-major grayscale
// buffer plus the HUD variables. Pixels has exactly Width*Height
// entries, 0 (black) to 255 (white).
type Frame struct {
	Width  int
	Height int
	Pixels []uint8
	HUD    HUD

	// GameOver reports that the episode ended on this frame. The
	// session terminates after rendering it.
	GameOver bool
}

// At returns the pixel at (x, y). Callers are responsible for bounds.
func (f *Frame) At(x, y int) uint8 {
	return f.Pixels[y*f.Width+x]
}

// Engine is one running game instance. Implementations are NOT safe
// for concurrent use; the orchestration layer guarantees that Advance,
// Save, and Load are never called concurrently on the same instance.
type Engine interface {
	// Advance steps the simulation by dt, applying the given commands
	// in order, and returns the resulting frame. An empty command
	// slice still advances world time (projectiles keep flying).
	Advance(ctx context.Context, dt time.Duration, commands []Command) (*Frame, error)

	// Save serializes the full simulation state. The returned blob is
	// opaque to the orchestration layer.
	Save(ctx context.Context) ([]byte, error)

	// Load restores simulation state from a blob previously produced
	// by Save on a compatible engine.
	Load(ctx context.Context, blob []byte) error

	// Close releases the engine instance. No calls are valid after
	// Close. Idempotent.
	Close() error
}
