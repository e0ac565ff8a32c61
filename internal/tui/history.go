package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/cantomaster/internal/scoring"
	"github.com/MrWong99/cantomaster/internal/usage"
)

var (
	cardStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
)

var historyQuit = key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit"))

// History is the Bubble Tea model of the attempt browser.
type History struct {
	summary  usage.Summary
	attempts []usage.Attempt
	table    table.Model
	width    int
	height   int
}

// NewHistory returns a browser over attempts, newest first, headed by
// summary.
func NewHistory(summary usage.Summary, attempts []usage.Attempt) *History {
	h := &History{summary: summary, attempts: attempts}
	h.table = buildHistoryTable(attempts, defaultWidth, 12)
	return h
}

// Init implements tea.Model.
func (h *History) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (h *History) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h.width, h.height = msg.Width, msg.Height
		h.table = buildHistoryTable(h.attempts, msg.Width, msg.Height-6)
		return h, nil
	case tea.KeyMsg:
		if key.Matches(msg, historyQuit) {
			return h, tea.Quit
		}
	}
	var cmd tea.Cmd
	h.table, cmd = h.table.Update(msg)
	return h, cmd
}

// View implements tea.Model.
func (h *History) View() string {
	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		card("Attempts", strconv.Itoa(h.summary.Attempts)),
		card("Average", fmt.Sprintf("%.1f", h.summary.Average)),
		card("Best", strconv.Itoa(h.summary.Best)),
	)
	if len(h.attempts) == 0 {
		return cards + "\n\n" + statusStyle.Render("No attempts yet. Run \"cantomaster practice\" to start.") + "\n"
	}
	return cards + "\n" + h.table.View() + "\n" + statusStyle.Render("↑/↓ scroll · q quit") + "\n"
}

func card(title, value string) string {
	return cardStyle.Render(cardTitleStyle.Render(title) + "\n" + cardValueStyle.Render(value))
}

func buildHistoryTable(attempts []usage.Attempt, width, height int) table.Model {
	// Sentence and transcript share what the fixed columns leave over.
	free := max(20, width-16-6-12-8)
	columns := []table.Column{
		{Title: "When", Width: 16},
		{Title: "Score", Width: 6},
		{Title: "Grade", Width: 12},
		{Title: "Sentence", Width: free / 2},
		{Title: "Heard", Width: free - free/2},
	}
	rows := make([]table.Row, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, table.Row{
			a.At.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(a.Score),
			string(scoring.GradeFor(a.Score)),
			truncate(a.Target, free/2),
			truncate(a.Transcript, free-free/2),
		})
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(max(1, height)),
		table.WithFocused(true),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#F0F0F0")).
		Background(lipgloss.Color("#4A4A4A"))
	t.SetStyles(styles)
	return t
}
