package main

import (
	"log"
	"net/rpc"
	"time"

	"github.com/AndrewLester/sntpal/internal/ui"
	"github.com/AndrewLester/sntpal/pkg/sntp"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

func handleStatusUI(socket string) {
	m := statusUIModel{socket: socket, table: setupTable()}

	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatalf("could not run program: %v", err)
	}
}

const fetchInfoPeriod = time.Second * 5

type statusUIModel struct {
	socket string

	table            table.Model
	daemonKillStatus string
	RPCInfo
}

var client *rpc.Client

type RPCInfo struct {
	snapshot sntp.TimeSnapshot
	servers  []sntp.ServerStatus
}

type dialSocketMessage *rpc.Client
type fetchInfoMessage RPCInfo
type tickMsg time.Time

func dialSocketCommand(m statusUIModel) tea.Cmd {
	return func() tea.Msg {
		client, err := rpc.Dial("unix", m.socket)
		if err != nil {
			log.Fatalf("Error connecting to sntpal daemon: %v", err)
		}

		return dialSocketMessage(client)
	}
}

func fetchInfoCommand() tea.Cmd {
	return func() tea.Msg {
		var snapshot sntp.TimeSnapshot
		snapshotCall := client.Go("SNTPalRPCServer.FetchSnapshot", 0, &snapshot, nil)
		var servers []sntp.ServerStatus
		serversCall := client.Go("SNTPalRPCServer.FetchServers", 0, &servers, nil)

		if err := (<-snapshotCall.Done).Error; err != nil {
			log.Fatalf("Error getting info from daemon: %v", err)
		}
		if err := (<-serversCall.Done).Error; err != nil {
			log.Fatalf("Error getting info from daemon: %v", err)
		}

		return fetchInfoMessage(RPCInfo{snapshot: snapshot, servers: servers})
	}
}

func stopDaemonCommand() tea.Cmd {
	return func() tea.Msg {
		killDaemon()
		return nil
	}
}

func tickCommand(duration time.Duration) tea.Cmd {
	return tea.Tick(duration, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m statusUIModel) Init() tea.Cmd {
	return dialSocketCommand(m)
}

func (m statusUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			if m.table.Focused() {
				m.table.Blur()
			} else {
				m.table.Focus()
			}
		case "stop", "s":
			m.daemonKillStatus = "Stopping sntpald"
			return m, tea.Sequence(stopDaemonCommand(), tea.Quit)
		case "ctrl+c", "q":
			return m, tea.Quit
		}

		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	case dialSocketMessage:
		client = msg
		return m, tickCommand(0)
	case fetchInfoMessage:
		m.RPCInfo = RPCInfo(msg)
		rows := []table.Row{}
		for _, server := range m.servers {
			lastError := server.LastError
			if lastError == "" {
				lastError = "-"
			}
			lastAttempt := "-"
			if !server.LastAttempt.IsZero() {
				lastAttempt = time.Since(server.LastAttempt).Round(time.Second).String() + " ago"
			}
			row := table.Row{
				server.Server,
				server.LastOffset.String(),
				server.LastRoundTrip.String(),
				lastAttempt,
				lastError,
			}
			rows = append(rows, row)
		}
		m.table.SetRows(rows)
		return m, nil
	case tickMsg:
		return m, tea.Batch(tickCommand(fetchInfoPeriod), fetchInfoCommand())
	default:
		return m, nil
	}
}

func (m statusUIModel) View() (s string) {
	s += ui.Title("SNTPal") + "\n"

	synced := "not synchronized"
	if m.snapshot.Synced {
		synced = "offset " + m.snapshot.Offset.String() + ", synced " + m.snapshot.LastSync.Format(time.Kitchen)
	}
	s += synced + "\n"
	s += ui.TableBase(m.table.View()) + "\n\n"
	if m.daemonKillStatus != "" {
		s += m.daemonKillStatus + "\n"
	} else {
		s += ui.Help("q: exit, s: stop daemon") + "\n"
	}
	return
}

func setupTable() table.Model {
	columns := []table.Column{
		{Title: "Server", Width: 22},
		{Title: "Offset", Width: 12},
		{Title: "RTT", Width: 12},
		{Title: "Last Attempt", Width: 15},
		{Title: "Last Error", Width: 25},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(7),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ui.TableGray).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("218")).
		Background(lipgloss.Color("70")).
		Bold(false)
	t.SetStyles(s)

	return t
}
