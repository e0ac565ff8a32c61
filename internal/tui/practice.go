// Package tui provides the Bubble Tea terminal interfaces: a practice screen
// that plays sentences and scores the learner's reading, and a history
// browser over stored attempts.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/cantomaster/internal/observe"
	"github.com/MrWong99/cantomaster/internal/scoring"
	"github.com/MrWong99/cantomaster/internal/sentence"
	"github.com/MrWong99/cantomaster/internal/speech"
	"github.com/MrWong99/cantomaster/internal/speech/adapter"
	"github.com/MrWong99/cantomaster/internal/usage"
	"github.com/MrWong99/cantomaster/pkg/audio"
	"github.com/MrWong99/cantomaster/pkg/provider/tts"
)

const defaultWidth = 80

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	targetStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	romanStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))
	meaningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C")).Italic(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	heardStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	perfectStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")).Bold(true)
	greatStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#95DE64"))
	goodStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	practiceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF7A45"))
)

// Store persists usage counts and scored attempts.
type Store interface {
	usage.Store
	RecordAttempt(ctx context.Context, a usage.Attempt) error
}

// PracticeConfig wires a [Practice] screen.
type PracticeConfig struct {
	Controller *speech.Controller
	Catalog    *sentence.Catalog

	// Store is optional; without it counts stay at zero and attempts are
	// not kept.
	Store Store

	// Player replays the learner's recording. Optional.
	Player adapter.Sink

	// Metrics is optional.
	Metrics *observe.Metrics

	AutoPlay      bool
	AutoPlayNext  bool
	AutoNextDelay time.Duration
}

// Practice is the Bubble Tea model of the practice screen.
type Practice struct {
	cfg     PracticeConfig
	keys    practiceKeys
	help    help.Model
	spinner spinner.Model

	// Controller callbacks run on other goroutines and are funnelled
	// through events into Update.
	events chan tea.Msg
	quit   chan struct{}

	current sentence.Sentence
	count   usage.Count

	speaking bool
	speakSeq int

	listening bool
	listenSeq int
	discard   bool
	capture   *speech.Capture

	heard     string
	result    *scoring.Result
	recording *speech.Recording

	replaying    bool
	replayCancel context.CancelFunc

	errMsg string
	width  int
}

type (
	startMsg     struct{}
	speakEndMsg  struct {
		seq  int
		auto bool
	}
	autoNextMsg  struct{ seq int }
	listenEndMsg struct{ seq int }
	countMsg     struct {
		id    string
		count usage.Count
	}
	transcriptMsg struct {
		seq    int
		target sentence.Sentence
		text   string
	}
	recordingMsg struct {
		seq int
		rec speech.Recording
	}
	replayDoneMsg struct{ err error }
	errMsg        struct{ err error }
)

// NewPractice returns the practice model. cfg.Controller and cfg.Catalog
// are required.
func NewPractice(cfg PracticeConfig) *Practice {
	if cfg.AutoNextDelay <= 0 {
		cfg.AutoNextDelay = time.Second
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyle
	return &Practice{
		cfg:     cfg,
		keys:    defaultPracticeKeys(),
		help:    help.New(),
		spinner: sp,
		events:  make(chan tea.Msg, 64),
		quit:    make(chan struct{}),
		width:   defaultWidth,
	}
}

// Init implements tea.Model.
func (m *Practice) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return startMsg{} },
		m.spinner.Tick,
		m.waitEvent(),
	)
}

// Update implements tea.Model.
func (m *Practice) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case startMsg:
		return m, m.next()
	case autoNextMsg:
		if msg.seq != m.speakSeq || m.speaking || m.listening {
			return m, nil
		}
		return m, m.next()
	case countMsg:
		if msg.id == m.current.ID {
			m.count = usage.Count{
				Listened: max(m.count.Listened, msg.count.Listened),
				Read:     max(m.count.Read, msg.count.Read),
			}
		}
		return m, nil
	case replayDoneMsg:
		m.replaying = false
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.errMsg = msg.err.Error()
		}
		return m, nil
	case errMsg:
		slog.Warn("practice error", "err", msg.err)
		m.errMsg = msg.err.Error()
		return m, nil
	case speakEndMsg, listenEndMsg, transcriptMsg, recordingMsg:
		return m, tea.Batch(m.handleEvent(msg), m.waitEvent())
	}
	return m, nil
}

func (m *Practice) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.shutdown()
		return tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Play):
		return m.play(false)
	case key.Matches(msg, m.keys.Record):
		return m.listen()
	case key.Matches(msg, m.keys.Stop):
		m.stop()
	case key.Matches(msg, m.keys.Next):
		return m.next()
	case key.Matches(msg, m.keys.Replay):
		return m.replay()
	}
	return nil
}

func (m *Practice) handleEvent(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case speakEndMsg:
		if msg.seq != m.speakSeq {
			return nil
		}
		m.speaking = false
		if msg.auto && m.cfg.AutoPlayNext && !m.listening {
			seq := m.speakSeq
			return tea.Tick(m.cfg.AutoNextDelay, func(time.Time) tea.Msg { return autoNextMsg{seq: seq} })
		}
	case transcriptMsg:
		if msg.seq != m.listenSeq || m.discard {
			return nil
		}
		res := scoring.Evaluate(msg.target.Text, msg.text)
		m.heard = msg.text
		m.result = &res
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.RecordScore(context.Background(), res.Score)
		}
		return tea.Batch(
			m.increment(msg.target.ID, usage.Read),
			m.recordAttempt(usage.Attempt{
				SentenceID: msg.target.ID,
				Target:     msg.target.Text,
				Transcript: msg.text,
				Score:      res.Score,
			}),
		)
	case recordingMsg:
		if msg.seq != m.listenSeq || m.discard || msg.rec.PCMBytes == 0 {
			return nil
		}
		rec := msg.rec
		m.recording = &rec
	case listenEndMsg:
		if msg.seq != m.listenSeq {
			return nil
		}
		m.listening = false
		m.discard = false
		m.capture = nil
	}
	return nil
}

// next cancels whatever is in flight and moves to a different sentence.
func (m *Practice) next() tea.Cmd {
	m.stopReplay()
	if m.listening {
		m.discard = true
		m.cfg.Controller.Cancel(m.capture)
	}
	m.speakSeq++
	m.speaking = false
	m.cfg.Controller.StopSpeaking()

	m.current = m.cfg.Catalog.Bank().Next(m.current.ID)
	m.count = usage.Count{}
	m.heard, m.result, m.recording = "", nil, nil
	m.errMsg = ""

	cmds := []tea.Cmd{m.loadCount(m.current.ID)}
	if m.cfg.AutoPlay && !m.listening {
		cmds = append(cmds, m.play(true))
	}
	return tea.Batch(cmds...)
}

func (m *Practice) play(auto bool) tea.Cmd {
	if m.current.Text == "" {
		m.errMsg = "no sentence loaded"
		return nil
	}
	if m.listening {
		m.errMsg = "recording in progress"
		return nil
	}
	m.stopReplay()
	m.errMsg = ""
	m.speakSeq++
	seq := m.speakSeq
	m.speaking = true
	m.cfg.Controller.Speak(m.current.Text, func() {
		m.send(speakEndMsg{seq: seq, auto: auto})
	})
	return m.increment(m.current.ID, usage.Listened)
}

func (m *Practice) listen() tea.Cmd {
	if m.current.Text == "" {
		m.errMsg = "no sentence loaded"
		return nil
	}
	if m.listening {
		m.errMsg = "session already active"
		return nil
	}
	m.stopReplay()
	m.speakSeq++
	m.speaking = false
	m.cfg.Controller.StopSpeaking()

	m.listenSeq++
	seq := m.listenSeq
	target := m.current
	capt := m.cfg.Controller.Listen(
		func(text string) { m.send(transcriptMsg{seq: seq, target: target, text: text}) },
		func() { m.send(listenEndMsg{seq: seq}) },
		func(rec speech.Recording) { m.send(recordingMsg{seq: seq, rec: rec}) },
	)
	if capt == nil {
		m.errMsg = "speech recognition is not available"
		return nil
	}
	m.listening = true
	m.discard = false
	m.capture = capt
	m.heard, m.result, m.recording = "", nil, nil
	m.errMsg = ""
	return nil
}

func (m *Practice) stop() {
	m.stopReplay()
	m.cfg.Controller.Cancel(m.capture)
	m.speakSeq++
	m.speaking = false
	m.cfg.Controller.StopSpeaking()
}

func (m *Practice) replay() tea.Cmd {
	if m.cfg.Player == nil || m.recording == nil {
		return nil
	}
	if m.listening {
		m.errMsg = "recording in progress"
		return nil
	}
	pcm, f, err := audio.DecodeWAV(m.recording.WAV)
	if err != nil {
		m.errMsg = err.Error()
		return nil
	}
	m.stopReplay()
	m.speakSeq++
	m.speaking = false
	m.cfg.Controller.StopSpeaking()

	ctx, cancel := context.WithCancel(context.Background())
	m.replayCancel = cancel
	m.replaying = true
	player := m.cfg.Player
	return func() tea.Msg {
		pipe := tts.NewPipe(f)
		go func() {
			pipe.SendAll(ctx, pcm, f.FrameSize()*f.SampleRate/10)
			pipe.CloseWithError(nil)
		}()
		return replayDoneMsg{err: player.Play(ctx, pipe)}
	}
}

func (m *Practice) stopReplay() {
	if m.replayCancel != nil {
		m.replayCancel()
		m.replayCancel = nil
	}
}

func (m *Practice) shutdown() {
	m.stopReplay()
	m.cfg.Controller.Cancel(m.capture)
	m.cfg.Controller.StopSpeaking()
	select {
	case <-m.quit:
	default:
		close(m.quit)
	}
}

func (m *Practice) send(msg tea.Msg) {
	select {
	case m.events <- msg:
	case <-m.quit:
	}
}

func (m *Practice) waitEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.events:
			return msg
		case <-m.quit:
			return nil
		}
	}
}

func (m *Practice) increment(id string, kind usage.Kind) tea.Cmd {
	store := m.cfg.Store
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		c, err := store.Increment(context.Background(), id, kind)
		if err != nil {
			return errMsg{err: err}
		}
		return countMsg{id: id, count: c}
	}
}

func (m *Practice) loadCount(id string) tea.Cmd {
	store := m.cfg.Store
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		counts, err := store.Counts(context.Background())
		if err != nil {
			return errMsg{err: err}
		}
		return countMsg{id: id, count: counts[id]}
	}
}

func (m *Practice) recordAttempt(a usage.Attempt) tea.Cmd {
	store := m.cfg.Store
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		if err := store.RecordAttempt(context.Background(), a); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

// View implements tea.Model.
func (m *Practice) View() string {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("廣東話 practice"))
	b.WriteString("\n\n")

	if m.current.Text != "" {
		b.WriteString(targetStyle.Render(center(m.current.Text, width)))
		b.WriteString("\n")
		if m.current.Romanization != "" {
			b.WriteString(romanStyle.Render(center(m.current.Romanization, width)))
			b.WriteString("\n")
		}
		if m.current.Meaning != "" {
			b.WriteString(meaningStyle.Render(center(m.current.Meaning, width)))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	switch {
	case m.listening:
		b.WriteString(m.spinner.View() + statusStyle.Render(" listening… read the sentence aloud"))
	case m.speaking:
		b.WriteString(m.spinner.View() + statusStyle.Render(" speaking…"))
	case m.replaying:
		b.WriteString(m.spinner.View() + statusStyle.Render(" playing your attempt…"))
	default:
		b.WriteString(statusStyle.Render(fmt.Sprintf("listened %d · read %d", m.count.Listened, m.count.Read)))
	}
	b.WriteString("\n")

	if m.result != nil {
		heard := m.heard
		if heard == "" {
			heard = "(nothing heard)"
		}
		b.WriteString("\n")
		b.WriteString(statusStyle.Render("heard: ") + heardStyle.Render(truncate(heard, width-7)))
		b.WriteString("\n")
		style := gradeStyle(m.result.Grade)
		b.WriteString(style.Render(fmt.Sprintf("%s %3d  %s", bar(m.result.Score, 20), m.result.Score, m.result.Grade)))
		b.WriteString("\n")
	}
	if m.errMsg != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.errMsg))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func gradeStyle(g scoring.Grade) lipgloss.Style {
	switch g {
	case scoring.GradePerfect:
		return perfectStyle
	case scoring.GradeGreat:
		return greatStyle
	case scoring.GradeGood:
		return goodStyle
	default:
		return practiceStyle
	}
}
