// Package tui renders the notification surfaces: a transient toast stack
// and a persistent bell with a dropdown. Both are read-only views over the
// store; the only write path is opening the bell, which clears the badge.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/recyconnect/notify/internal/feed"
	"github.com/recyconnect/notify/internal/store"
)

// Feed is the imperative entry point surfaces are given into the store.
type Feed interface {
	ClearUnread()
}

type (
	refreshMsg   struct{}
	toastTickMsg struct{}
)

// Model is the bubbletea model for the notifier.
type Model struct {
	feed   Feed
	bridge *Bridge
	toasts *ToastController

	snap   store.Snapshot
	open   bool
	spin   spinner.Model
	width  int
	height int
}

// NewModel builds the surface model over an initial snapshot.
func NewModel(f Feed, bridge *Bridge, toasts *ToastController, initial store.Snapshot) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	return Model{
		feed:   f,
		bridge: bridge,
		toasts: toasts,
		snap:   initial,
		spin:   sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.bridge.Wait(), m.spin.Tick)
}

func toastTick() tea.Cmd {
	return tea.Tick(toastTickInterval, func(time.Time) tea.Msg {
		return toastTickMsg{}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case refreshMsg:
		snap, updated, toasts := m.bridge.Drain()
		if updated {
			m.snap = snap
		}
		for _, n := range toasts {
			m.toasts.Push(n)
		}

		cmds := []tea.Cmd{m.bridge.Wait()}
		if m.toasts.HasToasts() && !m.toasts.Ticking() {
			m.toasts.SetTicking(true)
			cmds = append(cmds, toastTick())
		}
		return m, tea.Batch(cmds...)

	case toastTickMsg:
		m.toasts.Tick(toastTickInterval)
		if m.toasts.HasToasts() {
			return m, toastTick()
		}
		m.toasts.SetTicking(false)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter", "n", " ":
			if !m.open && m.snap.UnreadCount > 0 {
				m.feed.ClearUnread()
			}
			m.open = !m.open
			return m, nil
		case "esc":
			m.open = false
			return m, nil
		case "x":
			m.toasts.DismissAll()
			return m, nil
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.headerView())
	b.WriteString("\n")

	if m.open {
		b.WriteString(m.dropdownView())
	} else {
		b.WriteString(dimStyle.Render("press n to open notifications, q to quit"))
	}

	if m.toasts.HasToasts() {
		b.WriteString("\n\n")
		b.WriteString(m.toastView())
	}

	return b.String()
}

func (m Model) headerView() string {
	parts := []string{titleStyle.Render("RecyConnect")}

	switch m.snap.State {
	case feed.StateConnected:
		parts = append(parts, connectedStyle.Render("● live"))
	case feed.StateConnecting:
		parts = append(parts, connectingStyle.Render(m.spin.View()+" connecting"))
	default:
		parts = append(parts, disconnectedStyle.Render("○ offline"))
	}

	bell := "🔔"
	if m.snap.UnreadCount > 0 {
		bell += " " + badgeStyle.Render(badgeText(m.snap.UnreadCount))
	}
	parts = append(parts, bell)

	return strings.Join(parts, "  ")
}

// badgeText caps the rendered badge at "9+".
func badgeText(unread int) string {
	if unread > 9 {
		return "9+"
	}
	return fmt.Sprintf("%d", unread)
}

func (m Model) dropdownView() string {
	if len(m.snap.Notifications) == 0 {
		return dropdownStyle.Render(dimStyle.Render("No notifications yet."))
	}

	now := time.Now()
	var rows []string
	for _, n := range m.snap.Notifications {
		marker := "  "
		if !n.IsRead {
			marker = unreadDotStyle.Render("● ")
		}
		rows = append(rows, marker+n.Message+"  "+dimStyle.Render(relTime(n.CreatedAt, now)))
	}
	return dropdownStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) toastView() string {
	var boxes []string
	for _, t := range m.toasts.Toasts() {
		boxes = append(boxes, toastStyle.Render(t.notification.Message))
	}
	return lipgloss.JoinVertical(lipgloss.Left, boxes...)
}
