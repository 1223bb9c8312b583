package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/armrec/pkg/robot"
	"github.com/gwillem/armrec/pkg/teleop"
)

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Joint colors
var jointColors = map[robot.JointName]string{
	robot.Shoulder: "196", // red
	robot.Base:     "226", // yellow
	robot.Elbow:    "46",  // green
	robot.Hand:     "51",  // cyan
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type recordModel struct {
	rec           *teleop.Recorder
	logs          <-chan string
	stop          func()
	chart         *streamlinechart.Model
	width         int      // terminal width
	height        int      // terminal height
	lines         []string // last N log messages
	iteration     uint64
	stopping      bool
	lastPositions map[robot.JointName]float64 // freeze the chart while the arm is idle
}

type runResult struct {
	summary teleop.Summary
	err     error
}

// Messages from the recorder
type stateMsg teleop.State
type logMsg string
type doneMsg runResult

func waitForState(rec *teleop.Recorder) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-rec.States())
	}
}

func waitForLog(logs <-chan string) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-logs)
	}
}

func newRecordModel(rec *teleop.Recorder, logs <-chan string, stop func()) recordModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-3.5, 3.5),
	)
	for _, name := range robot.AllJoints() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[name]))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}

	return recordModel{
		rec:   rec,
		logs:  logs,
		stop:  stop,
		chart: &chart,
	}
}

func (m *recordModel) addLog(msg string) {
	m.lines = append(m.lines, msg)
	if len(m.lines) > maxLogs {
		m.lines = m.lines[len(m.lines)-maxLogs:]
	}
}

func (m *recordModel) hasMovement(positions map[robot.JointName]float64) bool {
	if m.lastPositions == nil {
		return true
	}
	for name, pos := range positions {
		if last, ok := m.lastPositions[name]; !ok || pos != last {
			return true
		}
	}
	return false
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *recordModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m recordModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.rec),
		waitForLog(m.logs),
	)
}

func (m recordModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			if !m.stopping {
				m.stopping = true
				m.addLog("Stopping, writing snapshots...")
				m.stop()
			}
		}
		return m, nil

	case stateMsg:
		state := teleop.State(msg)
		if state.Positions != nil {
			m.iteration = state.Iteration
			if m.hasMovement(state.Positions) {
				for name, pos := range state.Positions {
					m.chart.PushDataSet(string(name), pos)
				}
				m.chart.DrawAll()
				m.lastPositions = state.Positions
			}
		}
		return m, waitForState(m.rec)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.logs)

	case doneMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m recordModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("armrec"))
	sb.WriteString(fmt.Sprintf(" - iteration %d", m.iteration))
	sb.WriteString(statusStyle.Render("  " + m.rec.SnapshotDir()))
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	var logLines string
	if len(m.lines) == 0 {
		logLines = statusStyle.Render("Press Enter or 'q' to stop")
	} else {
		logLines = strings.Join(m.lines, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, name := range robot.AllJoints() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+string(name))
	}
	return strings.Join(items, "  ")
}
