package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/outpostctl/outpost/internal/account"
	"github.com/outpostctl/outpost/internal/autoloader"
	"github.com/outpostctl/outpost/internal/gamesession"
	"github.com/outpostctl/outpost/internal/inputrecorder"
	"github.com/outpostctl/outpost/internal/jobsupervisor"
	"github.com/outpostctl/outpost/internal/modregistry"
	"github.com/outpostctl/outpost/internal/processregistry"
)

const quitLabel = "quit"

// modulePrompts names the configuration questions each module's recorded
// input list expects, in order (matching each module's own parseInputs),
// since modregistry.RunFunc takes already-recorded answers rather than a
// Prompter.
var modulePrompts = map[string][]string{
	"transport": {
		"Origin city ID:",
		"Destination city ID:",
		"Destination island ID:",
		"Ship class (fast/heavy):",
		"Cargo amounts wood,wine,marble,crystal,sulfur:",
	},
}

// runMenu drives the interactive module-selection loop after a successful
// login: pick a module, answer its configuration prompts, dispatch it onto
// a supervised worker, then watch the live dashboard.
func runMenu(ctx context.Context, a *app, acct account.Account, session *gamesession.Session) error {
	acctKey := accountKey(acct)
	modules := a.modules(acctKey)
	registry := a.registry(acct.World, acct.Username)
	mailbox := a.mailbox(acct.World, acct.Username)
	autoloadStore := a.autoloadStore(acct.World, acct.Username)

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	runDir := filepath.Join(a.dataDir, "workers")
	supervisor := jobsupervisor.New(executable, runDir, registry, mailbox, a.log)

	for {
		choice, err := pickModule(modules)
		if err != nil {
			return err
		}
		if choice.Name == quitLabel {
			return nil
		}

		rec := inputrecorder.NewRecorder()
		if err := collectInputs(ctx, rec, modulePrompts[choice.Name]); err != nil {
			a.log.WithError(err).Warn("menu: aborted input collection")
			continue
		}

		job := jobsupervisor.Job{
			Label:      fmt.Sprintf("%s-%s", choice.Name, acctKey),
			ModuleName: choice.Name,
			AccountKey: acctKey,
			World:      acct.World,
			User:       acct.Username,
			Session:    session,
			Inputs:     rec.Answers(),
		}

		if confirmAutoload() {
			if _, err := autoloadStore.Save(choice.Name, choice.ID, choice.Description, rec.Answers(), true); err != nil {
				a.log.WithError(err).Warn("menu: failed to save autoload entry")
			}
		}

		go func() {
			if err := supervisor.Supervise(ctx, job, supervisor.Dispatch); err != nil {
				a.log.WithError(err).Warn("menu: module supervision ended")
			}
		}()

		if err := runDashboard(registry); err != nil {
			a.log.WithError(err).Warn("menu: dashboard exited with error")
		}
	}
}

func pickModule(modules *modregistry.Registry) (modregistry.Module, error) {
	list := modules.List()
	options := make([]string, 0, len(list)+1)
	byLabel := make(map[string]modregistry.Module, len(list))
	for _, m := range list {
		label := fmt.Sprintf("[%d] %-20s %s", m.ID, m.Name, m.Description)
		options = append(options, label)
		byLabel[label] = m
	}
	options = append(options, quitLabel)

	var picked string
	q := &survey.Select{Message: "Choose a module to run:", Options: options}
	if err := survey.AskOne(q, &picked); err != nil {
		return modregistry.Module{}, err
	}
	if picked == quitLabel {
		return modregistry.Module{Name: quitLabel}, nil
	}
	return byLabel[picked], nil
}

func collectInputs(ctx context.Context, rec *inputrecorder.Recorder, prompts []string) error {
	prompter := newRecordingPrompter(surveyPrompter{}, rec)
	for _, prompt := range prompts {
		if _, err := prompter.ReadLine(ctx, prompt); err != nil {
			return err
		}
	}
	return nil
}

func confirmAutoload() bool {
	save := false
	_ = survey.AskOne(&survey.Confirm{Message: "Relaunch this automatically on restart?", Default: false}, &save)
	return save
}

// dashboardModel is a bubbletea program that polls the process registry
// and renders live worker status until the user presses q (spec.md §7's
// live monitoring view).
type dashboardModel struct {
	registry *processregistry.Registry
	table    table.Model
	err      error
}

type tickMsg time.Time

func tickEvery() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func newDashboardTable() table.Model {
	columns := []table.Column{
		{Title: "Label", Width: 24},
		{Title: "Module", Width: 12},
		{Title: "PID", Width: 8},
		{Title: "Status", Width: 10},
		{Title: "Heartbeat", Width: 25},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(false), table.WithHeight(12))
	t.SetStyles(table.Styles{
		Header: lipgloss.NewStyle().Bold(true).Underline(true),
		Cell:   lipgloss.NewStyle(),
	})
	return t
}

func runDashboard(registry *processregistry.Registry) error {
	m := dashboardModel{registry: registry, table: newDashboardTable()}
	_, err := tea.NewProgram(m).Run()
	return err
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(tickEvery(), refreshCmd(m.registry))
}

type refreshMsg struct {
	workers []processregistry.WorkerRecord
	err     error
}

func refreshCmd(registry *processregistry.Registry) tea.Cmd {
	return func() tea.Msg {
		workers, err := registry.Refresh()
		return refreshMsg{workers: workers, err: err}
	}
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(tickEvery(), refreshCmd(m.registry))
	case refreshMsg:
		m.err = msg.err
		rows := make([]table.Row, 0, len(msg.workers))
		for _, w := range msg.workers {
			status := w.Status
			if processregistry.IsFrozen(w, 10*time.Minute) {
				status = "FROZEN"
			}
			rows = append(rows, table.Row{
				w.Label, w.ModuleName, fmt.Sprintf("%d", w.PID), status,
				w.LastHeartbeat.Format(time.RFC3339),
			})
		}
		m.table.SetRows(rows)
	}
	return m, nil
}

var dashboardHeaderStyle = lipgloss.NewStyle().Bold(true).Underline(true)

func (m dashboardModel) View() string {
	out := dashboardHeaderStyle.Render("outpost — live worker status") + "\n\n"
	if m.err != nil {
		out += fmt.Sprintf("error refreshing registry: %v\n", m.err)
	}
	out += m.table.View()
	out += "\n\npress q to return to the module menu\n"
	return out
}
