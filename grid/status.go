// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package grid

import (
	"fmt"
	"strings"

	"github.com/playgrid/playgrid/engine"
)

// healthBarLength is the number of segments in the status line's
// health bar.
const healthBarLength = 10

// StatusLine formats the engine HUD variables into a single fixed-
// format line, e.g.
//
//	HP [██████░░░░]  60% | Ammo 50 | Armor 0 | Pistol
func StatusLine(hud engine.HUD) string {
	return fmt.Sprintf("HP [%s] %3d%% | Ammo %d | Armor %d | %s",
		bar(hud.Health, 100, healthBarLength),
		clampPercent(hud.Health),
		hud.Ammo,
		hud.Armor,
		hud.WeaponName(),
	)
}

// Compose assembles the full display payload: the bordered grid, and
// beneath it the status line when hud is non-nil.
//
//	╔════════════╗
//	║ grid rows  ║
//	╚════════════╝
//	HP [...] ...
func Compose(g Grid, hud *engine.HUD) string {
	var b strings.Builder
	horizontal := strings.Repeat("═", g.Width)

	b.WriteString("╔" + horizontal + "╗\n")
	for y := range g.Height {
		b.WriteString("║")
		b.Write(g.Cells[y*g.Width : (y+1)*g.Width])
		b.WriteString("║\n")
	}
	b.WriteString("╚" + horizontal + "╝")

	if hud != nil {
		b.WriteString("\n")
		b.WriteString(StatusLine(*hud))
	}
	return b.String()
}

// bar renders value/maxValue as filled and empty segments.
func bar(value, maxValue, length int) string {
	if value < 0 {
		value = 0
	}
	if value > maxValue {
		value = maxValue
	}
	filled := value * length / maxValue
	return strings.Repeat("█", filled) + strings.Repeat("░", length-filled)
}

func clampPercent(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
