// Package tui implements the terminal dashboard behind "codescope tasks watch".
// It polls a Source and renders task state with lipgloss and bubbletea.
package tui
