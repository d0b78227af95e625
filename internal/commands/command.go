package commands

import (
	"fmt"
	"strings"
)

type Type string

const (
	TypeAdd        Type = "add"
	TypeSnooze     Type = "snooze"
	TypeComplete   Type = "complete"
	TypeDismiss    Type = "dismiss"
	TypeShow       Type = "show"
	TypeReschedule Type = "reschedule"
	TypeSync       Type = "sync"
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
	ErrCodeNoMatch         ErrorCode = "no_match"
	ErrCodeAmbiguous       ErrorCode = "ambiguous_target"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalidArg(format string, args ...any) error {
	return &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// AddArgs is "add <title> [@ <when>] [key:value ...]". Recognised keys are
// every, before, deadline, priority, group and tag; When defaults to one
// hour from now when empty.
type AddArgs struct {
	Title    string
	When     string
	Every    string
	Before   string
	Deadline string
	Priority string
	Group    string
	Tags     []string
}

type SnoozeArgs struct {
	Target string
	For    string
}

type TargetArgs struct {
	Target string
}

type ShowArgs struct {
	Subject string
	Tag     string
	Group   string
}

type RescheduleArgs struct {
	Target string
	When   string
}

type Command struct {
	Type       Type
	Raw        string
	Add        *AddArgs
	Snooze     *SnoozeArgs
	Complete   *TargetArgs
	Dismiss    *TargetArgs
	Show       *ShowArgs
	Reschedule *RescheduleArgs
}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]

	switch Type(head) {
	case TypeAdd:
		return parseAdd(input, args)
	case TypeSnooze:
		return parseSnooze(input, args)
	case TypeComplete, "done":
		return parseTarget(input, TypeComplete, args)
	case TypeDismiss:
		return parseTarget(input, TypeDismiss, args)
	case TypeShow, "ls":
		return parseShow(input, args)
	case TypeReschedule:
		return parseReschedule(input, args)
	case TypeSync:
		return Command{Type: TypeSync, Raw: input}, nil
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func parseAdd(raw string, args []string) (Command, error) {
	var (
		a     AddArgs
		title []string
		when  []string
		inAt  bool
	)
	for _, arg := range args {
		if key, val, ok := option(arg); ok {
			inAt = false
			switch key {
			case "every":
				a.Every = val
			case "before":
				a.Before = val
			case "deadline":
				a.Deadline = val
			case "priority":
				a.Priority = val
			case "group":
				a.Group = val
			case "tag":
				a.Tags = append(a.Tags, val)
			}
			continue
		}
		if arg == "@" {
			inAt = true
			continue
		}
		if strings.HasPrefix(arg, "@") {
			inAt = true
			when = append(when, strings.TrimPrefix(arg, "@"))
			continue
		}
		if inAt {
			when = append(when, arg)
		} else {
			title = append(title, arg)
		}
	}
	a.Title = strings.TrimSpace(strings.Join(title, " "))
	a.When = strings.Join(when, " ")
	if a.Title == "" {
		return Command{}, invalidArg("add requires a title")
	}
	return Command{Type: TypeAdd, Raw: raw, Add: &a}, nil
}

var optionKeys = map[string]bool{
	"every": true, "before": true, "deadline": true, "priority": true, "group": true, "tag": true,
}

func option(arg string) (key, val string, ok bool) {
	key, val, found := strings.Cut(arg, ":")
	key = strings.ToLower(key)
	if !found || !optionKeys[key] || val == "" {
		return "", "", false
	}
	return key, val, true
}

func parseSnooze(raw string, args []string) (Command, error) {
	if len(args) < 2 {
		return Command{}, invalidArg("snooze requires target and duration")
	}
	return Command{Type: TypeSnooze, Raw: raw, Snooze: &SnoozeArgs{Target: strings.ToLower(args[0]), For: strings.Join(args[1:], " ")}}, nil
}

func parseTarget(raw string, t Type, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, invalidArg("%s requires exactly one target", t)
	}
	cmd := Command{Type: t, Raw: raw}
	target := &TargetArgs{Target: strings.ToLower(args[0])}
	if t == TypeComplete {
		cmd.Complete = target
	} else {
		cmd.Dismiss = target
	}
	return cmd, nil
}

func parseShow(raw string, args []string) (Command, error) {
	s := ShowArgs{Subject: "active"}
	for i, arg := range args {
		lower := strings.ToLower(arg)
		switch {
		case strings.HasPrefix(lower, "tag:"):
			s.Tag = strings.TrimSpace(arg[len("tag:"):])
		case strings.HasPrefix(lower, "group:"):
			s.Group = strings.TrimSpace(arg[len("group:"):])
		case i == 0:
			s.Subject = lower
		}
	}
	if !validSubjects[s.Subject] {
		return Command{}, invalidArg("unknown show subject %q", s.Subject)
	}
	return Command{Type: TypeShow, Raw: raw, Show: &s}, nil
}

var validSubjects = map[string]bool{
	"active": true, "all": true, "snoozed": true, "completed": true,
	"dismissed": true, "missed": true, "next": true,
}

func parseReschedule(raw string, args []string) (Command, error) {
	if len(args) < 2 {
		return Command{}, invalidArg("reschedule requires target and time")
	}
	return Command{Type: TypeReschedule, Raw: raw, Reschedule: &RescheduleArgs{Target: strings.ToLower(args[0]), When: strings.Join(args[1:], " ")}}, nil
}
