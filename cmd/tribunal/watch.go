package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/veliant/tribunal/internal/engine"
)

var (
	watchRunDir    string
	watchRefresh   time.Duration
	watchTraceName string
	watchExitDone  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail a run's trace in a live dashboard",
	Long: `Watch tails the trace.jsonl of a run directory and renders a live phase
checklist with evidence, degradation and retry counters. It works on running
and on finished runs; point it at a directory created by 'tribunal run'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := strings.TrimSpace(watchRunDir)
		if dir == "" && len(args) == 1 {
			dir = strings.TrimSpace(args[0])
		}
		if dir == "" {
			return fmt.Errorf("watch requires --run <dir>")
		}
		model := newWatchModel(filepath.Join(dir, watchTraceName), watchRefresh, watchExitDone)
		_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchRunDir, "run", "", "Run directory containing the trace log")
	watchCmd.Flags().DurationVar(&watchRefresh, "refresh", time.Second, "Refresh interval")
	watchCmd.Flags().StringVar(&watchTraceName, "trace-filename", "trace.jsonl", "Trace filename inside the run directory")
	watchCmd.Flags().BoolVar(&watchExitDone, "exit-on-done", false, "Exit automatically once the run completes")
	rootCmd.AddCommand(watchCmd)
}

type traceRefreshMsg struct {
	events []engine.TraceEvent
	err    error
}

type watchModel struct {
	tracePath  string
	refresh    time.Duration
	exitOnDone bool
	spinner    spinner.Model
	events     []engine.TraceEvent
	waiting    bool
	readErr    string
	width      int
	height     int
}

func newWatchModel(tracePath string, refresh time.Duration, exitOnDone bool) watchModel {
	if refresh <= 0 {
		refresh = time.Second
	}
	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(titleStyle))
	return watchModel{
		tracePath:  tracePath,
		refresh:    refresh,
		exitOnDone: exitOnDone,
		spinner:    sp,
		waiting:    true,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, readTraceCmd(m.tracePath))
}

func readTraceCmd(path string) tea.Cmd {
	return func() tea.Msg {
		events, err := engine.ReadTrace(path)
		return traceRefreshMsg{events: events, err: err}
	}
}

func scheduleTraceRead(path string, refresh time.Duration) tea.Cmd {
	return tea.Tick(refresh, func(time.Time) tea.Msg {
		events, err := engine.ReadTrace(path)
		return traceRefreshMsg{events: events, err: err}
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case traceRefreshMsg:
		switch {
		case msg.err == nil:
			m.waiting = false
			m.readErr = ""
			m.events = msg.events
		case errors.Is(msg.err, os.ErrNotExist):
			// The run has not produced a trace yet; keep polling.
			m.waiting = true
			m.readErr = ""
		default:
			m.readErr = msg.err.Error()
		}
		if m.exitOnDone && summarizeTrace(m.events).done {
			return m, tea.Quit
		}
		return m, scheduleTraceRead(m.tracePath, m.refresh)

	case spinner.TickMsg:
		if summarizeTrace(m.events).done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// runProgress is everything the dashboard derives from the raw trace.
type runProgress struct {
	runID        string
	active       engine.Phase
	completed    map[engine.Phase]bool
	loopAttempts map[engine.Phase]int
	gateStatus   string
	outcome      string
	evidence     int
	degradations int
	retries      int
	exhausted    int
	done         bool
	tail         []engine.TraceEvent
}

func summarizeTrace(events []engine.TraceEvent) runProgress {
	p := runProgress{
		completed:    map[engine.Phase]bool{},
		loopAttempts: map[engine.Phase]int{},
	}
	for _, event := range events {
		if p.runID == "" {
			p.runID = event.RunID
		}
		switch event.Type {
		case engine.EventRunStarted:
			p.active = engine.PhaseQuestionIntake
		case engine.EventPhaseStarted:
			p.active = event.Phase
		case engine.EventPhaseCompleted:
			p.completed[event.Phase] = true
		case engine.EventGateDecision:
			if status, ok := event.Payload["status"].(string); ok {
				p.gateStatus = status
			}
		case engine.EventLoopAttempt:
			if attempt, ok := event.Payload["attempt"].(float64); ok {
				p.loopAttempts[event.Phase] = int(attempt)
			}
		case engine.EventLoopExhausted:
			p.exhausted++
		case engine.EventEvidenceRecorded:
			p.evidence++
		case engine.EventDegradation:
			p.degradations++
		case engine.EventValidationRetry:
			p.retries++
		case engine.EventRunCompleted:
			p.done = true
			p.active = engine.PhaseTerminal
			p.completed[engine.PhaseTerminal] = true
			if outcome, ok := event.Payload["outcome"].(string); ok {
				p.outcome = outcome
			}
		}
	}
	tail := 6
	if len(events) < tail {
		tail = len(events)
	}
	p.tail = events[len(events)-tail:]
	return p
}

func (m watchModel) View() string {
	p := summarizeTrace(m.events)

	title := "TRIBUNAL · watching " + m.tracePath
	if p.runID != "" {
		title = "TRIBUNAL · " + p.runID
	}
	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render(title))
	fmt.Fprintln(&b)

	switch {
	case m.readErr != "":
		fmt.Fprintln(&b, fragileStyle.Render("trace error: ")+m.readErr)
	case m.waiting:
		fmt.Fprintln(&b, m.spinner.View()+" waiting for trace at "+m.tracePath)
	default:
		b.WriteString(m.renderChecklist(p))
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "%s %d   %s %d   %s %d\n",
			labelStyle.Render("evidence:"), p.evidence,
			labelStyle.Render("degradations:"), p.degradations,
			labelStyle.Render("retries:"), p.retries)
		if p.gateStatus != "" {
			fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("gate:"), p.gateStatus)
		}
		if p.done {
			fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("outcome:"), outcomeStyle(p.outcome).Render(p.outcome))
		}
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, labelStyle.Render("recent events"))
		for _, event := range p.tail {
			line := fmt.Sprintf("  %s  %-20s %s", event.TS.Format("15:04:05"), event.Type, event.Phase)
			fmt.Fprintln(&b, dimStyle.Render(truncateLine(line, m.width)))
		}
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, dimStyle.Render("q to quit"))
	return b.String()
}

func truncateLine(line string, width int) string {
	if width <= 4 {
		return line
	}
	runes := []rune(line)
	if len(runes) <= width-1 {
		return line
	}
	return string(runes[:width-4]) + "..."
}

func (m watchModel) renderChecklist(p runProgress) string {
	var b strings.Builder
	for _, phase := range engine.Phases() {
		marker := "[ ]"
		name := string(phase)
		switch {
		case phase == p.active && !p.done:
			marker = "[" + m.spinner.View() + "]"
			name = titleStyle.Render(name)
		case p.completed[phase]:
			marker = "[x]"
		}
		if engine.Loops(phase) {
			if attempts := p.loopAttempts[phase]; attempts > 1 {
				name += dimStyle.Render(fmt.Sprintf("  (attempt %d)", attempts))
			}
		}
		fmt.Fprintf(&b, "  %s %s\n", marker, name)
	}
	return b.String()
}
