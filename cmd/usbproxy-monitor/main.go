// Command usbproxy-monitor polls usbproxy-server's admin surface (C8) and
// renders a live table of sessions and handles, mirroring the teacher's
// bubbletea/lipgloss/gopsutil terminal UI composition.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	psutil "github.com/shirou/gopsutil/v3/cpu"
	psmem "github.com/shirou/gopsutil/v3/mem"

	"github.com/vavrusa/usbproxy/internal/config"
)

var adminAddr = flag.String("admin-addr", "", "usbproxy-server admin address, overrides USBPROXY_ADMIN_ADDR")

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FFFF00")).
			Bold(true).Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#4B5563")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	copyNoticeStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#10B981")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1)
)

type sessionRow struct {
	ID          string `json:"id"`
	RemoteAddr  string `json:"remote_addr"`
	OpenedAt    string `json:"opened_at"`
	OpenHandles int    `json:"open_handles"`
}

type metricsSnapshot struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesReplied  uint64 `json:"frames_replied"`
	SessionsTotal  uint64 `json:"sessions_total"`
	SessionsActive int    `json:"sessions_active"`
	DispatchErrors uint64 `json:"dispatch_errors"`
}

type tickMsg time.Time

type pollResultMsg struct {
	sessions []sessionRow
	metrics  metricsSnapshot
	err      error
}

type resourceMsg string

type model struct {
	baseURL     string
	client      *http.Client
	table       table.Model
	metrics     metricsSnapshot
	resourceStr string
	lastErr     error
	copyNotice  string
	width       int
}

func initialModel(baseURL string) model {
	columns := []table.Column{
		{Title: "ID", Width: 10},
		{Title: "Remote Address", Width: 24},
		{Title: "Opened At", Width: 24},
		{Title: "Open Handles", Width: 14},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(true), table.WithHeight(12))
	return model{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 2 * time.Second},
		table:   t,
		width:   80,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(pollCmd(m.baseURL, m.client), resourceCmd(), tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "c":
			if row := m.table.SelectedRow(); len(row) > 0 {
				if err := clipboard.WriteAll(row[0]); err == nil {
					m.copyNotice = "copied " + row[0]
				}
			}
			return m, nil
		}
	case tickMsg:
		return m, tea.Batch(pollCmd(m.baseURL, m.client), tickCmd())
	case resourceMsg:
		m.resourceStr = string(msg)
		return m, resourceCmd()
	case pollResultMsg:
		m.lastErr = msg.err
		m.copyNotice = ""
		if msg.err == nil {
			m.metrics = msg.metrics
			rows := make([]table.Row, 0, len(msg.sessions))
			for _, s := range msg.sessions {
				id := s.ID
				if len(id) > 8 {
					id = id[:8]
				}
				rows = append(rows, table.Row{id, s.RemoteAddr, s.OpenedAt, fmt.Sprint(s.OpenHandles)})
			}
			m.table.SetRows(rows)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m model) View() string {
	header := headerStyle.Render("usbproxy monitor — " + m.baseURL)
	body := m.table.View()

	footer := fmt.Sprintf("sessions active=%d total=%d | frames recv=%d replied=%d | dispatch errors=%d | %s",
		m.metrics.SessionsActive, m.metrics.SessionsTotal,
		m.metrics.FramesReceived, m.metrics.FramesReplied,
		m.metrics.DispatchErrors, m.resourceStr)

	out := header + "\n" + body + "\n" + footerStyle.Render(footer)
	if m.lastErr != nil {
		wrapped := ansi.Wordwrap("poll error: "+m.lastErr.Error(), m.width, " \t")
		out += "\n" + errorStyle.Render(wrapped)
	}
	if m.copyNotice != "" {
		out += "\n" + copyNoticeStyle.Render(ansi.Wordwrap(m.copyNotice, m.width, " \t"))
	}
	return out
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func resourceCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		cpuPercent, _ := psutil.Percent(0, false)
		memInfo, _ := psmem.VirtualMemory()
		cpu := 0.0
		if len(cpuPercent) > 0 {
			cpu = cpuPercent[0]
		}
		return resourceMsg(fmt.Sprintf("CPU: %.1f%% | RAM: %.1f%% | Go: %s", cpu, memInfo.UsedPercent, runtime.Version()))
	})
}

func pollCmd(baseURL string, client *http.Client) tea.Cmd {
	return func() tea.Msg {
		sessions, err := fetchSessions(client, baseURL)
		if err != nil {
			return pollResultMsg{err: err}
		}
		metrics, err := fetchMetrics(client, baseURL)
		if err != nil {
			return pollResultMsg{err: err}
		}
		return pollResultMsg{sessions: sessions, metrics: metrics}
	}
}

func fetchSessions(client *http.Client, baseURL string) ([]sessionRow, error) {
	resp, err := client.Get(baseURL + "/sessions")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var body struct {
		Sessions []sessionRow `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Sessions, nil
}

func fetchMetrics(client *http.Client, baseURL string) (metricsSnapshot, error) {
	resp, err := client.Get(baseURL + "/metrics")
	if err != nil {
		return metricsSnapshot{}, err
	}
	defer resp.Body.Close()
	var snap metricsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return metricsSnapshot{}, err
	}
	return snap, nil
}

func main() {
	flag.Parse()

	cfg, err := config.LoadProxyConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "usbproxy-monitor: load config: %v\n", err)
		os.Exit(1)
	}
	addr := cfg.AdminAddr
	if *adminAddr != "" {
		addr = *adminAddr
	}
	baseURL := "http://" + normalizeAddr(addr)

	p := tea.NewProgram(initialModel(baseURL))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "usbproxy-monitor: %v\n", err)
		os.Exit(1)
	}
}

func normalizeAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "127.0.0.1" + addr
	}
	return addr
}
