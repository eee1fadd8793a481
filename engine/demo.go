// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/playgrid/playgrid/lib/codec"
)

// Demo is a deterministic stand-in engine. It simulates a player
// walking around a procedurally shaded maze: commands move and turn
// the player, fire spends ammo, and the rendered frame is a pure
// function of the player's pose. Identical state always renders an
// identical frame, which the quantizer diff logic and the persistence
// round-trip tests rely on.
type Demo struct {
	width  int
	height int
	state  demoState
	closed bool
}

// demoState is the complete serializable simulation state.
type demoState struct {
	PosX   int `json:"pos_x"`
	PosY   int `json:"pos_y"`
	Angle  int `json:"angle"` // degrees, 0 <= Angle < 360
	Health int `json:"health"`
	Armor  int `json:"armor"`
	Ammo   int `json:"ammo"`
	Weapon int `json:"weapon"`
}

// NewDemo creates a demo engine rendering frames of the given pixel
// dimensions.
func NewDemo(width, height int) *Demo {
	return &Demo{
		width:  width,
		height: height,
		state: demoState{
			Health: 100,
			Ammo:   50,
			Weapon: 2,
		},
	}
}

// Advance applies the commands to the player pose and returns the
// rendered frame. dt is accepted for interface compatibility; the
// demo world has no autonomous motion, so only commands change state.
func (d *Demo) Advance(ctx context.Context, dt time.Duration, commands []Command) (*Frame, error) {
	if d.closed {
		return nil, fmt.Errorf("engine: demo engine is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, command := range commands {
		d.apply(command)
	}
	return d.render(), nil
}

func (d *Demo) apply(command Command) {
	switch command {
	case Forward:
		dx, dy := heading(d.state.Angle)
		d.state.PosX += dx
		d.state.PosY += dy
	case Backward:
		dx, dy := heading(d.state.Angle)
		d.state.PosX -= dx
		d.state.PosY -= dy
	case TurnLeft:
		d.state.Angle = (d.state.Angle + 345) % 360
	case TurnRight:
		d.state.Angle = (d.state.Angle + 15) % 360
	case Fire:
		if d.state.Ammo > 0 {
			d.state.Ammo--
		}
	case Use:
		// Nothing to interact with in the demo maze.
	case SwitchWeapon:
		d.state.Weapon = d.state.Weapon%7 + 1
	}
}

// heading maps an angle to a unit step on the grid, quantized to the
// nearest axis.
func heading(angle int) (dx, dy int) {
	switch {
	case angle < 45 || angle >= 315:
		return 1, 0
	case angle < 135:
		return 0, 1
	case angle < 225:
		return -1, 0
	default:
		return 0, -1
	}
}

// render produces the frame for the current pose: shaded wall bands
// over a ceiling/floor gradient. Pure function of state.
func (d *Demo) render() *Frame {
	pixels := make([]uint8, d.width*d.height)
	half := d.height / 2

	for x := range d.width {
		// Ray direction for this column, 60 degree field of view.
		ray := (d.state.Angle + x*60/d.width - 30 + 360) % 360
		span, shade := d.wall(ray)

		top := half - span
		bottom := half + span
		for y := range d.height {
			var value uint8
			switch {
			case y < top:
				value = 30 // ceiling
			case y <= bottom:
				value = shade
			default:
				// Floor brightens toward the bottom edge.
				value = uint8(90 + (y-bottom)*100/(d.height-bottom+1))
			}
			pixels[y*d.width+x] = value
		}
	}

	return &Frame{
		Width:  d.width,
		Height: d.height,
		Pixels: pixels,
		HUD: HUD{
			Health: d.state.Health,
			Armor:  d.state.Armor,
			Ammo:   d.state.Ammo,
			Weapon: d.state.Weapon,
		},
		GameOver: d.state.Health <= 0,
	}
}

// wall returns the half-height and shade of the wall hit by a ray.
// Derived from a hash of the ray bucket and player cell so that
// moving or turning shifts the visible walls.
func (d *Demo) wall(ray int) (span int, shade uint8) {
	h := uint32(2166136261)
	for _, v := range [3]int{ray / 10, d.state.PosX, d.state.PosY} {
		h ^= uint32(v)
		h *= 16777619
	}
	maxSpan := d.height / 2
	span = int(h%uint32(maxSpan-1)) + 1
	shade = uint8(140 + h%100)
	return span, shade
}

// Save serializes the demo state as a CBOR blob.
func (d *Demo) Save(ctx context.Context) ([]byte, error) {
	if d.closed {
		return nil, fmt.Errorf("engine: demo engine is closed")
	}
	blob, err := codec.Marshal(d.state)
	if err != nil {
		return nil, fmt.Errorf("engine: serializing demo state: %w", err)
	}
	return blob, nil
}

// Load restores demo state from a blob produced by Save.
func (d *Demo) Load(ctx context.Context, blob []byte) error {
	if d.closed {
		return fmt.Errorf("engine: demo engine is closed")
	}
	var state demoState
	if err := codec.Unmarshal(blob, &state); err != nil {
		return fmt.Errorf("engine: parsing demo state: %w", err)
	}
	d.state = state
	return nil
}

// Close marks the engine closed. Idempotent.
func (d *Demo) Close() error {
	d.closed = true
	return nil
}

var _ Engine = (*Demo)(nil)
