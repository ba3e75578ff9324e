package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title    lipgloss.Style
	box      lipgloss.Style
	panel    lipgloss.Style
	selected lipgloss.Style
	choice   lipgloss.Style
	note     lipgloss.Style
	err      lipgloss.Style
	help     lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		box:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2),
		panel:    lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1).Foreground(lipgloss.Color("250")),
		selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		choice:   lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
		note:     lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("39")),
		err:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		help:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}
