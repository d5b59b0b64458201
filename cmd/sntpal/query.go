package main

import (
	"context"
	"fmt"
	"os"

	"github.com/AndrewLester/sntpal/internal/sugar"
	"github.com/AndrewLester/sntpal/internal/ui"
	"github.com/AndrewLester/sntpal/pkg/sntp"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	padding  = 10
	maxWidth = 80
)

func handleQueryCommand(server string, exchanger sntp.Exchanger, step bool) {
	config := sntp.NewConfig(sntp.WithServers(server), sntp.WithSyncOnInit(false))

	attempts := make(chan sntp.Attempt, config.Retries+1)
	system := sntp.NewSystem(config, exchanger, sntp.WithAttemptHook(func(attempt sntp.Attempt) {
		attempts <- attempt
	}))

	m := queryCommandModel{
		system:        system,
		server:        server,
		step:          step,
		attempts:      attempts,
		totalAttempts: config.Retries + 1,
		progress:      progress.New(progress.WithScaledGradient("#68b1b1", "#6ea4ff")),
	}

	if _, err := sugar.RunProgramWithErrors(m); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

type queryCommandModel struct {
	progress      progress.Model
	system        *sntp.System
	server        string
	step          bool
	attempts      chan sntp.Attempt
	totalAttempts int

	finished int
	result   string
	err      error
}

type syncResultMessage sntp.SyncResult
type attemptMessage sntp.Attempt

func syncCommand(system *sntp.System) tea.Cmd {
	return func() tea.Msg {
		return syncResultMessage(system.Sync(context.Background()))
	}
}

func attemptListenCommand(m queryCommandModel) tea.Cmd {
	return func() tea.Msg {
		return attemptMessage(<-m.attempts)
	}
}

func (m queryCommandModel) Init() tea.Cmd {
	return tea.Batch(syncCommand(m.system), attemptListenCommand(m))
}

func (m queryCommandModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.progress.Width = msg.Width - padding*2 - 4
		if m.progress.Width > maxWidth {
			m.progress.Width = maxWidth
		}
		return m, nil
	case attemptMessage:
		m.finished++
		return m, attemptListenCommand(m)
	case syncResultMessage:
		result := sntp.SyncResult(msg)
		if !result.Ok() {
			m.err = result.Err
			return m, tea.Quit
		}

		offsetString := result.Offset.String()
		if result.Offset > 0 {
			offsetString = "+" + offsetString
		}
		m.result = fmt.Sprint(offsetString, " rtt ", result.RoundTripDelay, " ", result.Server)

		if m.step {
			if err := stepClock(result.Offset); err != nil {
				m.err = fmt.Errorf("could not step clock: %w", err)
				return m, tea.Quit
			}
			m.result += " (clock stepped)"
		}
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m queryCommandModel) View() (s string) {
	if m.err != nil {
		return
	}

	if m.result == "" {
		s += ui.Title("SNTPal - Query") + "\n\n"
		s += m.progress.ViewAs(float64(m.finished)/float64(m.totalAttempts)) + "\n\n"
		s += ui.Help("q: exit") + "\n"
	} else {
		s += m.result + "\n"
	}
	return
}

func (m queryCommandModel) GetError() error {
	return m.err
}
