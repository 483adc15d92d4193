package main

import (
	"fmt"
	"guide-chat/domain"
	"guide-chat/domain/event"
	"guide-chat/infrastructure/storage"
	"guide-chat/projection"
	"guide-chat/runtime"
	"io"
	"sync"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

const timeLayout = "02 Jan 15:04"

type view struct {
	out    io.Writer
	engine *runtime.Engine
	mu     sync.Mutex
}

func newView(out io.Writer, engine *runtime.Engine) *view {
	return &view{out: out, engine: engine}
}

func (v *view) Render() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renderConversations()
	v.renderThread()
	v.renderNotifications()
}

// Follow prints every store change until the returned func is called.
func (v *view) Follow() func() {
	unsubscribes := []func(){
		v.engine.Presence().Subscribe(func(change projection.PresenceChange) {
			v.mu.Lock()
			defer v.mu.Unlock()
			for _, id := range change.Joined {
				fmt.Fprintln(v.out, color.FgGreen.Render("+ "+string(id)+" online"))
			}
			for _, id := range change.Left {
				fmt.Fprintln(v.out, color.FgGray.Render("- "+string(id)+" offline"))
			}
		}),
		v.engine.Directory().Subscribe(func([]domain.Conversation) {
			v.mu.Lock()
			defer v.mu.Unlock()
			v.renderConversations()
		}),
		v.engine.Thread().Subscribe(func(projection.ThreadState) {
			v.mu.Lock()
			defer v.mu.Unlock()
			v.renderThread()
		}),
		v.engine.Notifications().Subscribe(func(state projection.NotificationState) {
			v.mu.Lock()
			defer v.mu.Unlock()
			fmt.Fprintln(v.out, color.FgYellow.Render(fmt.Sprintf("Unread notifications: %d", state.Count)))
		}),
	}
	return func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}
}

// Summary prints how many events of each type reached the journal.
func (v *view) Summary(journal *storage.Journal) error {
	counts, err := journal.Counts()
	if err != nil {
		return fmt.Errorf("journal counts: %w", err)
	}
	table := newTable(v.out, "Event", "Recorded")
	for _, t := range event.AllTypes() {
		table.Append([]string{string(t), fmt.Sprintf("%d", counts[t])})
	}
	table.Render()
	return nil
}

func (v *view) renderConversations() {
	self := v.engine.Session().UserID
	presence := v.engine.Presence()
	table := newTable(v.out, "", "Conversation", "With", "Role", "Last message", "Updated")
	for _, c := range v.engine.Directory().Conversations() {
		other, _ := c.Counterpart(self)
		marker := color.FgGray.Render("○")
		if presence.IsOnline(other.ID) {
			marker = color.FgGreen.Render("●")
		}
		table.Append([]string{
			marker,
			string(c.ID),
			lo.Ternary(other.DisplayName != "", other.DisplayName, string(other.ID)),
			string(other.Role),
			ellipsis(c.LastMessage, 40),
			c.UpdatedAt.Local().Format(timeLayout),
		})
	}
	table.Render()
}

func (v *view) renderThread() {
	thread := v.engine.Thread()
	active := thread.Active()
	if active == "" {
		return
	}
	fmt.Fprintln(v.out, color.New(color.BgBlack, color.FgGreen).Render(fmt.Sprintf("  ====== %s ======", active)))
	table := newTable(v.out, "At", "From", "Message", "State")
	for _, m := range thread.Messages() {
		state := string(m.State)
		switch m.State {
		case domain.Tentative:
			state = color.FgYellow.Render(state)
		case domain.Failed:
			state = color.FgRed.Render(state + ": " + m.FailureReason)
		}
		table.Append([]string{
			m.CreatedAt.Local().Format(timeLayout),
			string(m.SenderID),
			ellipsis(m.Preview(), 60),
			state,
		})
	}
	table.Render()
}

func (v *view) renderNotifications() {
	state := v.engine.Notifications().State()
	fmt.Fprintln(v.out, color.FgYellow.Render(fmt.Sprintf("Unread notifications: %d", state.Count)))
	if len(state.Items) == 0 {
		return
	}
	table := newTable(v.out, "Type", "Message", "Read", "At")
	for _, n := range state.Items {
		table.Append([]string{
			n.Type,
			ellipsis(n.Message, 60),
			lo.Ternary(n.IsRead, "yes", "no"),
			n.CreatedAt.Local().Format(timeLayout),
		})
	}
	table.Render()
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func ellipsis(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
