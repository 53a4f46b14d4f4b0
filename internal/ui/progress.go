package ui

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/roomdrop/roomdrop/internal/utils"
)

type progressMsg struct {
	current int64
	percent int
	speed   float64
}

type finishMsg struct {
	err error
}

// progressModel renders one transfer: spinner, bar, percent, speed and bytes.
type progressModel struct {
	label    string
	total    int64
	bar      progress.Model
	spinner  spinner.Model
	onCancel func()

	current int64
	percent int
	speed   float64

	finished  bool
	err       error
	cancelled bool
}

func newProgressModel(label string, total int64, onCancel func()) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return progressModel{
		label: label,
		total: total,
		bar: progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
		spinner:  s,
		onCancel: onCancel,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancelled = true
			if m.onCancel != nil {
				m.onCancel()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(30, msg.Width-60))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		// Out-of-order updates never move the bar backwards.
		if msg.current >= m.current {
			m.current = msg.current
			m.percent = msg.percent
			m.speed = msg.speed
		}

	case finishMsg:
		m.finished = true
		m.err = msg.err
		if msg.err == nil {
			m.current = m.total
			m.percent = 100
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder

	icon := m.spinner.View()
	name := utils.TruncateString(m.label, 30)
	switch {
	case m.err != nil:
		icon = IconError
		name = ErrorStyle.Render(name)
	case m.finished:
		icon = IconSuccess
		name = SuccessStyle.Render(name)
	}
	fmt.Fprintf(&b, "%s %s ", icon, name)

	b.WriteString(m.bar.ViewAs(float64(m.percent) / 100))
	fmt.Fprintf(&b, " %3d%%", m.percent)

	if !m.finished && m.speed > 0 {
		b.WriteString(MutedStyle.Render(" " + utils.FormatSpeed(m.speed)))
	}
	b.WriteString(MutedStyle.Render(fmt.Sprintf(" (%s/%s)",
		utils.FormatSize(m.current), utils.FormatSize(m.total))))

	if m.err != nil {
		b.WriteString("\n" + ErrorStyle.Render(m.err.Error()))
	}
	if !m.finished && !m.cancelled {
		b.WriteString("\n" + MutedStyle.Render("Press q to cancel"))
	}
	return b.String() + "\n"
}

// TransferView is a live progress bar for a single file.
type TransferView struct {
	program *tea.Program
	done    chan struct{}
}

// NewTransferView creates the view. onCancel runs when the user quits it.
func NewTransferView(label string, total int64, onCancel func()) *TransferView {
	model := newProgressModel(label, total, onCancel)
	return &TransferView{
		program: tea.NewProgram(model, tea.WithOutput(Out)),
		done:    make(chan struct{}),
	}
}

func (v *TransferView) Start() {
	go func() {
		defer close(v.done)
		if _, err := v.program.Run(); err != nil {
			slog.Debug("progress view stopped", "error", err)
		}
	}()
}

// Update reports bytes moved so far.
func (v *TransferView) Update(current int64, percent int, speed float64) {
	v.program.Send(progressMsg{current: current, percent: percent, speed: speed})
}

// Finish renders the final state and waits for the view to exit.
func (v *TransferView) Finish(err error) {
	v.program.Send(finishMsg{err: err})
	<-v.done
}
