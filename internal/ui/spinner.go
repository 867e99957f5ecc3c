package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	spinnerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	textStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	quitTextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type taskDoneMsg[T any] struct {
	value T
	err   error
}

type spinnerModel[T any] struct {
	spinner  spinner.Model
	text     string
	task     func() (T, error)
	value    T
	err      error
	quitting bool
}

func (m spinnerModel[T]) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg {
			v, err := m.task()
			return taskDoneMsg[T]{value: v, err: err}
		},
	)
}

func (m spinnerModel[T]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.err = fmt.Errorf("cancelled by user")
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case taskDoneMsg[T]:
		m.value = msg.value
		m.err = msg.err
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m spinnerModel[T]) View() string {
	if m.quitting {
		return ""
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), textStyle.Render(m.text))
}

// Spin runs task while showing a spinner on stderr and returns its result.
func Spin[T any](text string, task func() (T, error)) (T, error) {
	var zero T

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	m := spinnerModel[T]{
		spinner: s,
		text:    text,
		task:    task,
	}

	// stdout may be consumed by eval or credential_process
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	finalModel, err := p.Run()
	if err != nil {
		return zero, err
	}

	fm, ok := finalModel.(spinnerModel[T])
	if !ok {
		return zero, fmt.Errorf("internal error: invalid model type")
	}
	return fm.value, fm.err
}
