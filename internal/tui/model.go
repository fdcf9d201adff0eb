package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"meos/internal/domain"
	"meos/internal/session"
)

// answerMsg carries a finished query back into the update loop.
type answerMsg struct {
	query  string
	answer domain.Answer
	err    error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx      context.Context
	service  session.Answerer
	topK     int
	input    textinput.Model
	viewport viewport.Model
	answer   domain.Answer
	summary  string
	status   string
	cursor   int
	ready    bool
	pending  bool
	query    string
}

// New creates a new TUI model instance. summary is shown under the header.
func New(ctx context.Context, service session.Answerer, topK int, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your journal, goals or notes (exit to quit)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		service:  service,
		topK:     topK,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Lumo is ready.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + summary, status, spacer
		vh := max(3, msg.Height-reserved)
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.render())
		return m, nil

	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Answered %q with %d sources (up/down to browse)", msg.query, len(msg.answer.Sources))
			m.answer = msg.answer
			m.cursor = 0
			m.query = msg.query
		}
		m.viewport.SetContent(m.render())
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if session.IsExit(q) {
				return m, tea.Quit
			}
			if q == "" || m.pending {
				return m, nil
			}
			m.pending = true
			m.status = "Thinking..."
			m.input.SetValue("")
			return m, m.ask(q)
		case "down":
			if n := len(m.answer.Sources); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "up":
			if n := len(m.answer.Sources); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.render())
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(query string) tea.Cmd {
	ctx, svc, topK := m.ctx, m.service, m.topK
	return func() tea.Msg {
		answer, err := svc.Answer(ctx, query, topK)
		return answerMsg{query: query, answer: answer, err: err}
	}
}

// View renders the TUI layout and current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Lumo")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) render() string {
	if m.query == "" {
		return "No answer yet."
	}

	var b strings.Builder
	b.WriteString(m.answer.Text)

	if len(m.answer.Sources) == 0 {
		b.WriteString("\n\n" + sourceStyle.Render("No sources."))
		return b.String()
	}

	r := m.answer.Sources[m.cursor]
	title := fmt.Sprintf("Source %d/%d  %s · %s  score=%.3f",
		m.cursor+1, len(m.answer.Sources), r.Chunk.Category, r.Chunk.ID, r.Score)
	b.WriteString("\n\n" + sourceStyle.Render(title) + "\n")
	b.WriteString(highlightBestSentence(r.Chunk.Text, m.query))
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`[^.!?\n]+(?:[.!?]+|\n|$)`)
)

// highlightBestSentence renders the sentence sharing the most words with
// query in the highlight style.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	var sentences []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}

	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}

	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
