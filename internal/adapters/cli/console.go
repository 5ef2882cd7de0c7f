package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dkeye/VoiceCall/internal/core"
	"github.com/dkeye/VoiceCall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Controller is the call surface the console drives. *call.Session implements it.
type Controller interface {
	StartCall(to domain.Identity)
	EndCall()
	ToggleMute()
	ToggleSpeaker()
	Snapshot() core.Snapshot
}

type Console struct {
	ctl Controller
	in  io.Reader
	out *Renderer
}

func NewConsole(ctl Controller, in io.Reader, out *Renderer) *Console {
	return &Console{ctl: ctl, in: in, out: out}
}

// Run reads commands until quit, EOF or ctx is done. A reader blocked in
// c.in is left to the caller to unblock.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		errc <- sc.Err()
	}()

	c.out.Printf("type help for commands\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			if c.Exec(line) {
				return nil
			}
		}
	}
}

// Exec runs one line and reports whether the console should stop.
func (c *Console) Exec(line string) bool {
	cmd, err := Parse(line)
	if errors.Is(err, ErrEmptyCommand) {
		return false
	}
	if err != nil {
		c.out.Printf("error: %v\n", err)
		return false
	}
	log.Debug().Str("module", "adapters.cli").Str("verb", string(cmd.Verb)).Msg("command")

	switch cmd.Verb {
	case VerbCall:
		c.ctl.StartCall(cmd.Target)
	case VerbEnd:
		c.ctl.EndCall()
	case VerbMute:
		c.ctl.ToggleMute()
	case VerbSpeaker:
		c.ctl.ToggleSpeaker()
	case VerbStatus:
		c.out.OnState(c.ctl.Snapshot())
	case VerbHelp:
		c.out.Printf("%s", helpText)
	case VerbQuit:
		return true
	}
	return false
}

// Renderer writes session state and notices as text lines. It implements core.Observer.
type Renderer struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

var _ core.Observer = (*Renderer)(nil)

func NewRenderer(w io.Writer) *Renderer { return &Renderer{w: w} }

func (r *Renderer) Printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

func (r *Renderer) OnState(s core.Snapshot) {
	line := FormatSnapshot(s)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = line
	fmt.Fprintln(r.w, line)
}

func (r *Renderer) OnNotice(n core.Notice) {
	r.Printf("%s\n", FormatNotice(n))
}

// Last returns the most recently rendered state line.
func (r *Renderer) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func FormatSnapshot(s core.Snapshot) string {
	line := fmt.Sprintf("[%s] %s", s.Status, s.Local)
	if !s.Remote.IsZero() {
		line += " <-> " + string(s.Remote)
	}
	mic, out := "mic on", "speaker"
	if s.Muted {
		mic = "mic muted"
	}
	if !s.SpeakerEnabled {
		out = "earpiece"
	}
	return line + " | " + mic + " | " + out
}

func FormatNotice(n core.Notice) string {
	line := "! " + string(n.Kind)
	if !n.Remote.IsZero() {
		line += " " + string(n.Remote)
	}
	if n.Reason != "" {
		line += " (" + n.Reason + ")"
	}
	if n.Err != nil {
		line += ": " + n.Err.Error()
	}
	return line
}
