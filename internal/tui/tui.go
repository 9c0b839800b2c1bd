package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/qlinetech/qcode/model"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))           // Orange
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// Task is the work shown behind the spinner.
type Task func() (model.Summary, error)

// StackTracer is an error that carries a stack trace worth printing.
type StackTracer interface {
	error
	StackTrace() string
}

// --- Messages ---
type summaryMsg struct {
	model.Summary
}

type errorMsg struct{ err error }

func (e errorMsg) Error() string { return e.err.Error() }

// --- Model ---
type Model struct {
	task    Task
	label   string
	spinner spinner.Model
	state   state
	summary summaryMsg
	err     error
}

type state int

const (
	stateProcessing state = iota
	stateSummary
	stateError
)

func New(label string, task Task) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	if label == "" {
		label = "Processing..."
	}
	return Model{
		task:    task,
		label:   label,
		spinner: s,
		state:   stateProcessing,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runTask)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case summaryMsg:
		m.state = stateSummary
		m.summary = msg
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.err = msg
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateProcessing {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	switch m.state {
	case stateProcessing:
		return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
	case stateError:
		return errorStyle.Render("Error: ", m.err.Error()) + "\n"
	case stateSummary:
		return RenderSummary(m.summary.Summary)
	default:
		return ""
	}
}

// Result returns what the task produced once the program has finished.
func (m Model) Result() (model.Summary, error) {
	if m.state == stateError {
		return model.Summary{}, m.err.(errorMsg).err
	}
	return m.summary.Summary, nil
}

func section(b *strings.Builder, style lipgloss.Style, title string, files []string) bool {
	if len(files) == 0 {
		return false
	}
	b.WriteString(style.Render(title))
	b.WriteString("\n")
	for _, f := range files {
		b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
	}
	return true
}

// RenderSummary formats a summary the way the spinner view ends.
func RenderSummary(s model.Summary) string {
	var b strings.Builder

	if s.Message != "" {
		b.WriteString(headerStyle.Render(s.Message))
		b.WriteString("\n\n")
	}

	hasContent := section(&b, successStyle, "Created:", s.Created)
	hasContent = section(&b, successStyle, "Modified:", s.Modified) || hasContent
	hasContent = section(&b, warnStyle, "Deleted:", s.Deleted) || hasContent
	hasContent = section(&b, errorStyle, "Failed:", s.Failed) || hasContent

	if !hasContent && s.Message == "" {
		b.WriteString(faintStyle.Render("Nothing to do."))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) runTask() tea.Msg {
	summary, err := m.task()
	if err != nil {
		var st StackTracer
		if errors.As(err, &st) {
			// The TUI will exit, so we can print to stderr here for the stack trace.
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", st.StackTrace())
		}
		return errorMsg{err}
	}
	return summaryMsg{
		Summary: summary,
	}
}

// Run shows a spinner while task runs, then its summary.
func Run(label string, task Task) (model.Summary, error) {
	final, err := tea.NewProgram(New(label, task), tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		return model.Summary{}, fmt.Errorf("error running program: %w", err)
	}
	return final.(Model).Result()
}
