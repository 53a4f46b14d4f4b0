package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

type confirmModel struct {
	question string
	answer   bool
	answered bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y", "enter":
		m.answer, m.answered = true, true
		return m, tea.Quit
	case "n", "N", "esc", "q", "ctrl+c":
		m.answer, m.answered = false, true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.answered {
		choice := ErrorStyle.Render("no")
		if m.answer {
			choice = SuccessStyle.Render("yes")
		}
		return fmt.Sprintf("%s %s\n", m.question, choice)
	}
	return fmt.Sprintf("%s %s ", m.question, MutedStyle.Render("(Y/n)"))
}

// Confirm asks a yes/no question on the terminal. Enter means yes.
func Confirm(question string) (bool, error) {
	final, err := tea.NewProgram(confirmModel{question: question}, tea.WithOutput(Out)).Run()
	if err != nil {
		return false, fmt.Errorf("prompt: %w", err)
	}
	m := final.(confirmModel)
	return m.answered && m.answer, nil
}
