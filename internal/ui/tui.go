// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program and the key-event channels for the app
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// CommandMsg is a playback command requested from the keyboard.
type CommandMsg struct {
	Action string
}

// Controls holds channels for UI-to-app communication.
type Controls struct {
	Commands chan CommandMsg
	Activity chan struct{}
	Quit     chan struct{}
}

// NewControls creates the control channels.
func NewControls() *Controls {
	return &Controls{
		Commands: make(chan CommandMsg, 10),
		Activity: make(chan struct{}, 10),
		Quit:     make(chan struct{}, 1),
	}
}

// Run starts the TUI.
func Run(ctrl *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(ctrl), tea.WithAltScreen())
	return p, nil
}
