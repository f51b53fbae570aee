package domain

import "fmt"

type CommandKind string

const (
	CommandStart  CommandKind = "start"
	CommandPause  CommandKind = "pause"
	CommandResume CommandKind = "resume"
	CommandStop   CommandKind = "stop_stream"
	CommandClose  CommandKind = "close"
)

// Command is a validated client instruction. URL is only meaningful for CommandStart.
type Command struct {
	Kind CommandKind
	URL  string
}

// ParseCommand maps a wire command name to a Command.
func ParseCommand(name, url string) (Command, error) {
	switch kind := CommandKind(name); kind {
	case CommandStart:
		return Command{Kind: kind, URL: url}, nil
	case CommandPause, CommandResume, CommandStop, CommandClose:
		return Command{Kind: kind}, nil
	default:
		return Command{}, &UnknownCommandError{Name: name}
	}
}

// UnknownCommandError is returned for command names outside the supported set.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	if e.Name == "" {
		return "invalid command message"
	}
	return fmt.Sprintf("unknown command %q", e.Name)
}

// SessionState is the run state of a streaming session.
type SessionState int32

const (
	SessionIdle SessionState = iota
	SessionRunning
	SessionPaused
	SessionStopping
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionRunning:
		return "running"
	case SessionPaused:
		return "paused"
	case SessionStopping:
		return "stopping"
	default:
		return "unknown"
	}
}
