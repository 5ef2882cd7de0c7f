// Package cli is the console presentation: it parses user commands into call
// intents and renders session state to a writer.
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/VoiceCall/internal/domain"
)

type Verb string

const (
	VerbCall    Verb = "call"
	VerbEnd     Verb = "end"
	VerbMute    Verb = "mute"
	VerbSpeaker Verb = "speaker"
	VerbStatus  Verb = "status"
	VerbHelp    Verb = "help"
	VerbQuit    Verb = "quit"
)

var (
	ErrEmptyCommand   = errors.New("empty command")
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingTarget  = errors.New("call needs a target identity")
	ErrExtraArguments = errors.New("too many arguments")
)

type Command struct {
	Verb   Verb
	Target domain.Identity
}

var aliases = map[string]Verb{
	"call":    VerbCall,
	"dial":    VerbCall,
	"end":     VerbEnd,
	"hangup":  VerbEnd,
	"mute":    VerbMute,
	"speaker": VerbSpeaker,
	"status":  VerbStatus,
	"help":    VerbHelp,
	"?":       VerbHelp,
	"quit":    VerbQuit,
	"exit":    VerbQuit,
}

// Parse turns one input line into a Command.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrEmptyCommand
	}
	verb, ok := aliases[strings.ToLower(fields[0])]
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}
	args := fields[1:]

	if verb != VerbCall {
		if len(args) > 0 {
			return Command{}, fmt.Errorf("%s: %w", verb, ErrExtraArguments)
		}
		return Command{Verb: verb}, nil
	}

	switch len(args) {
	case 0:
		return Command{}, ErrMissingTarget
	case 1:
	default:
		return Command{}, fmt.Errorf("%s: %w", verb, ErrExtraArguments)
	}
	target, err := domain.ParseIdentity(args[0])
	if err != nil {
		return Command{}, fmt.Errorf("call target: %w", err)
	}
	return Command{Verb: VerbCall, Target: target}, nil
}

const helpText = `commands:
  call <id>   start a call
  end         hang up
  mute        toggle microphone
  speaker     toggle speaker routing
  status      show the call state
  help        show this text
  quit        leave
`
