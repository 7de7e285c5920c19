package model

import (
	"fmt"
	"strings"
)

type Command string

const (
	CommandPumpOn  Command = "PUMP_ON"
	CommandPumpOff Command = "PUMP_OFF"
	CommandLEDOn   Command = "LED_ON"
	CommandLEDOff  Command = "LED_OFF"
)

func (c Command) Valid() bool {
	switch c {
	case CommandPumpOn, CommandPumpOff, CommandLEDOn, CommandLEDOff:
		return true
	}
	return false
}

func (c Command) IsPump() bool {
	return c == CommandPumpOn || c == CommandPumpOff
}

func (c Command) IsLED() bool {
	return c == CommandLEDOn || c == CommandLEDOff
}

// TurnsOn reports whether the command switches its actuator on.
func (c Command) TurnsOn() bool {
	return c == CommandPumpOn || c == CommandLEDOn
}

// ParseCommand accepts the tag in any case.
func ParseCommand(s string) (Command, error) {
	c := Command(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, s)
	}
	return c, nil
}

// ParseStoredCommand reads a manual slot value as persisted. Besides the
// command tags it accepts the "true"/"false" pump switches written by early
// firmware.
func ParseStoredCommand(s string) (Command, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return CommandPumpOn, true
	case "false":
		return CommandPumpOff, true
	}
	cmd, err := ParseCommand(s)
	if err != nil {
		return "", false
	}
	return cmd, true
}

type CommandSource string

const (
	SourceNone   CommandSource = ""
	SourceManual CommandSource = "manual"
	SourceAuto   CommandSource = "auto"
)
