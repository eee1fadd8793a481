// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/playgrid/playgrid/engine"
	"github.com/playgrid/playgrid/grid"
	"github.com/playgrid/playgrid/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var width, height int
	var interval time.Duration

	flagSet := pflag.NewFlagSet("playgrid-play", pflag.ContinueOnError)
	flagSet.IntVar(&width, "width", 60, "grid width in cells")
	flagSet.IntVar(&height, "height", 24, "grid height in cells")
	flagSet.DurationVar(&interval, "interval", 250*time.Millisecond, "simulation tick interval")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("playgrid-play")
		return nil
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("playgrid-play needs an interactive terminal")
	}

	model := newModel(width, height, interval)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// tickMsg drives the simulation at the configured interval.
type tickMsg time.Time

type model struct {
	demo     *engine.Demo
	width    int
	height   int
	interval time.Duration

	pending  []engine.Command
	rendered string
	hud      engine.HUD
	paused   bool
	gameOver bool
	err      error
}

func newModel(width, height int, interval time.Duration) *model {
	return &model{
		demo:     engine.NewDemo(width, height),
		width:    width,
		height:   height,
		interval: interval,
	}
}

func (m *model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m *model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// keyCommands mirrors the reaction keymap the bot seeds in a room;
// here the bindings are keyboard keys instead of emoji.
var keyCommands = map[string]engine.Command{
	"up":    engine.Forward,
	"w":     engine.Forward,
	"down":  engine.Backward,
	"s":     engine.Backward,
	"left":  engine.TurnLeft,
	"a":     engine.TurnLeft,
	"right": engine.TurnRight,
	"d":     engine.TurnRight,
	"f":     engine.Fire,
	"e":     engine.Use,
	"tab":   engine.SwitchWeapon,
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "p":
			m.paused = !m.paused
			return m, nil
		}
		if command, ok := keyCommands[msg.String()]; ok && !m.paused && !m.gameOver {
			m.pending = append(m.pending, command)
		}
		return m, nil

	case tickMsg:
		if m.paused || m.gameOver || m.err != nil {
			return m, m.tickCmd()
		}
		m.step()
		return m, m.tickCmd()
	}
	return m, nil
}

// step advances the simulation one tick and re-renders the grid.
func (m *model) step() {
	commands := m.pending
	m.pending = nil

	frame, err := m.demo.Advance(context.Background(), m.interval, commands)
	if err != nil {
		m.err = err
		return
	}
	g, err := grid.Quantize(frame, m.width, m.height)
	if err != nil {
		m.err = err
		return
	}
	m.rendered = g.String()
	m.hud = frame.HUD
	m.gameOver = frame.GameOver
}

var (
	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
)

func (m *model) View() string {
	if m.err != nil {
		return alertStyle.Render(fmt.Sprintf("engine fault: %v", m.err)) + "\n"
	}
	if m.rendered == "" {
		return statusStyle.Render("warming up...") + "\n"
	}

	body := m.rendered + "\n" + grid.StatusLine(m.hud)
	out := frameStyle.Render(body)

	switch {
	case m.gameOver:
		out += "\n" + alertStyle.Render("*** GAME OVER ***  q quits")
	case m.paused:
		out += "\n" + statusStyle.Render("paused  (p resumes, q quits)")
	default:
		out += "\n" + statusStyle.Render("wasd/arrows move  f fire  e use  tab weapon  p pause  q quit")
	}
	return out + "\n"
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Playgrid local preview — the demo engine in your terminal.

Runs the same simulation, quantizer, and status line the bot renders
into a Matrix message, without needing a homeserver. Useful for tuning
grid dimensions and tick intervals before deploying the bot.

Usage:
  playgrid-play [flags]

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
