// Package presenter is the presentation boundary: ephemeral toasts and the
// audio cue. Nothing here may raise — notification delivery correctness must
// not depend on presentation succeeding.
package presenter

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"posfeed/internal/router"
	"posfeed/pkg/types"
)

// Dispatcher consumes a presentation policy for a notification. It has no
// feedback path into the core.
type Dispatcher interface {
	Dispatch(n types.Notification, p router.Policy)
}

// Nop is a Dispatcher that does nothing. Used headless and in tests.
type Nop struct{}

func (Nop) Dispatch(types.Notification, router.Policy) {}

// bell is the terminal's audio cue.
const bell = "\a"

var kindStyles = map[types.Kind]lipgloss.Style{
	types.KindInfo:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
	types.KindSuccess: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
	types.KindWarning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
	types.KindError:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
}

var messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

// Terminal renders toasts as styled lines on a writer and rings the terminal
// bell for policies that ask for sound.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
	log zerolog.Logger
}

// NewTerminal creates a terminal dispatcher writing to out.
func NewTerminal(out io.Writer, logger zerolog.Logger) *Terminal {
	return &Terminal{
		out: out,
		log: logger.With().Str("component", "presenter").Logger(),
	}
}

// Dispatch renders the toast. Rendering and write failures are caught and
// discarded; the worst outcome is a missing toast.
func (t *Terminal) Dispatch(n types.Notification, p router.Policy) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Debug().Interface("panic", r).Msg("presentation failure discarded")
		}
	}()

	style, ok := kindStyles[n.Kind]
	if !ok {
		style = kindStyles[types.KindInfo]
	}

	line := fmt.Sprintf("%s %s\n",
		style.Render(fmt.Sprintf("[%s]", n.Kind)),
		messageStyle.Render(n.Message),
	)
	if p.Sound {
		line += bell
	}

	t.mu.Lock()
	_, err := io.WriteString(t.out, line)
	t.mu.Unlock()
	if err != nil {
		t.log.Debug().Err(err).Msg("toast write failed")
	}
}
