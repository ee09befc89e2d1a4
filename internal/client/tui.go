package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Vasu1712/scenyx-live/internal/models"
)

const inputMaxLength = 500

var reactionGlyphs = map[models.ReactionKind]string{
	models.ReactionFire:  "🔥",
	models.ReactionHeart: "❤️",
	models.ReactionClap:  "👏",
}

// TUI renders a View in the terminal: a header with the concert and its
// counters, the log, and an input line. Lines starting with / are commands.
type TUI struct {
	app     *tview.Application
	view    *View
	header  *tview.TextView
	logView *tview.TextView
	input   *tview.InputField

	ctx     context.Context
	stopped atomic.Bool
	running sync.WaitGroup
}

// RunTUI runs the terminal concert view until the user quits or ctx is
// cancelled. The channel is always closed before it returns.
func RunTUI(ctx context.Context, cfg ViewConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := &TUI{app: tview.NewApplication(), ctx: ctx}
	cfg.OnChange = func() {
		if t.stopped.Load() {
			return
		}
		t.app.QueueUpdateDraw(t.render)
	}
	t.view = NewView(cfg)

	t.header = tview.NewTextView().SetDynamicColors(true).SetWrap(true)
	t.header.SetBorder(true)
	t.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true).
		SetScrollable(true).
		ScrollToEnd()
	t.input = tview.NewInputField().
		SetLabel(cfg.DisplayName + " ❯❯ ").
		SetFieldWidth(0).
		SetAcceptanceFunc(tview.InputFieldMaxLength(inputMaxLength))
	t.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			t.submit(t.input.GetText())
		}
	})

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(t.header, 7, 0, false).
		AddItem(t.logView, 0, 1, false).
		AddItem(t.input, 1, 0, true)
	t.app.SetRoot(flex, true).SetFocus(t.input)
	t.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			t.app.Stop()
			return nil
		}
		return event
	})

	go func() {
		<-ctx.Done()
		t.app.Stop()
	}()
	t.start()

	err := t.app.Run()
	t.stopped.Store(true)
	cancel()
	t.view.Close()
	t.running.Wait()
	return err
}

func (t *TUI) start() {
	t.running.Add(1)
	go func() {
		defer t.running.Done()
		_ = t.view.Run(t.ctx)
	}()
}

func (t *TUI) submit(text string) {
	cmd, isCommand := parseCommand(text)
	if !isCommand {
		if t.view.SendChat(text) {
			t.input.SetText("")
		}
		return
	}

	t.input.SetText("")
	switch cmd {
	case "quit", "exit":
		t.app.Stop()
	case "reconnect":
		if s := t.view.State(); s == StateClosed || s == StateNotFound {
			t.start()
		}
	default:
		t.view.SendReaction(models.ReactionKind(cmd))
	}
}

// parseCommand reports the command name of a "/name" line.
func parseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	return strings.ToLower(strings.TrimPrefix(text, "/")), true
}

func (t *TUI) render() {
	s := t.view.Snapshot()
	t.header.SetText(renderHeader(s))

	var b strings.Builder
	for _, e := range s.Log {
		b.WriteString(renderEntry(e))
		b.WriteByte('\n')
	}
	t.logView.SetText(b.String())
	t.logView.ScrollToEnd()
}

func renderHeader(s Snapshot) string {
	var b strings.Builder
	if s.Concert != nil {
		fmt.Fprintf(&b, "[::b]%s[::-]", tview.Escape(s.Concert.Title))
		if s.Concert.HostDisplayName != "" {
			fmt.Fprintf(&b, "  hosted by %s", tview.Escape(s.Concert.HostDisplayName))
		}
		b.WriteByte('\n')
		if s.Concert.Description != "" {
			fmt.Fprintf(&b, "[gray]%s[white]\n", tview.Escape(s.Concert.Description))
		}
		if len(s.Concert.Setlist) > 0 {
			tracks := make([]string, 0, len(s.Concert.Setlist))
			for _, e := range s.Concert.Setlist {
				tracks = append(tracks, fmt.Sprintf("%d. %s", e.Position, tview.Escape(e.Title)))
			}
			fmt.Fprintf(&b, "setlist: %s\n", strings.Join(tracks, "  "))
		}
	}

	b.WriteString(renderIndicator(s))
	for _, kind := range models.ReactionKinds {
		fmt.Fprintf(&b, "   %s %d", reactionGlyphs[kind], s.Counters[kind])
		if n := s.Overlay[kind]; n > 0 {
			fmt.Fprintf(&b, " [yellow]+%d[white]", n)
		}
	}
	return b.String()
}

func renderIndicator(s Snapshot) string {
	switch s.State {
	case StateJoined:
		return "[green]● live[white]"
	case StateConnecting:
		return "[yellow]● connecting[white]"
	case StateNotFound:
		return "[red]concert not found[white]"
	case StateClosed:
		return "[red]● disconnected[white] (/reconnect)"
	default:
		return "[gray]○ idle[white]"
	}
}

func renderEntry(e Entry) string {
	ts := e.Timestamp.Local().Format("15:04:05")
	if e.Kind == EntrySystem {
		return fmt.Sprintf("[gray][%s] %s[white]", ts, tview.Escape(e.Text))
	}
	return fmt.Sprintf("[white][%s] [blue]%s[white]: %s", ts, tview.Escape(e.DisplayName), tview.Escape(e.Text))
}
