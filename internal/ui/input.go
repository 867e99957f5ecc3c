package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// GetInput prompts on stderr and returns the entered text, or fallback when
// the user just presses enter.
func GetInput(prompt string, fallback string) (string, error) {
	ti := textinput.New()
	ti.Placeholder = fallback
	ti.Focus()
	ti.CharLimit = 128
	ti.Width = 40

	m := inputModel{
		textInput: ti,
		prompt:    prompt,
	}

	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	fm, ok := finalModel.(inputModel)
	if !ok || !fm.complete {
		return "", fmt.Errorf("cancelled")
	}
	if v := strings.TrimSpace(fm.textInput.Value()); v != "" {
		return v, nil
	}
	return fallback, nil
}

type inputModel struct {
	textInput textinput.Model
	prompt    string
	complete  bool
	quitting  bool
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			m.complete = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.complete {
		return ""
	}
	if m.quitting {
		return quitTextStyle.Render("Cancelled.")
	}
	return fmt.Sprintf("\n%s\n\n%s\n\n", titleStyle.Render(m.prompt), m.textInput.View())
}
