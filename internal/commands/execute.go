package commands

import (
	"fmt"

	"github.com/sandeepkv93/remindd/internal/model"
)

type Result struct {
	Message   string
	Reminders []model.Reminder
	Next      *model.Candidate
}

type Handlers struct {
	Add        func(AddArgs) (Result, error)
	Snooze     func(SnoozeArgs) (Result, error)
	Complete   func(TargetArgs) (Result, error)
	Dismiss    func(TargetArgs) (Result, error)
	Show       func(ShowArgs) (Result, error)
	Reschedule func(RescheduleArgs) (Result, error)
	Sync       func() (Result, error)
}

func missing(t Type) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: fmt.Sprintf("%s handler not configured", t)}
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeAdd:
		if handlers.Add == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Add(*cmd.Add)
	case TypeSnooze:
		if handlers.Snooze == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Snooze(*cmd.Snooze)
	case TypeComplete:
		if handlers.Complete == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Complete(*cmd.Complete)
	case TypeDismiss:
		if handlers.Dismiss == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Dismiss(*cmd.Dismiss)
	case TypeShow:
		if handlers.Show == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Show(*cmd.Show)
	case TypeReschedule:
		if handlers.Reschedule == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Reschedule(*cmd.Reschedule)
	case TypeSync:
		if handlers.Sync == nil {
			return Result{}, missing(cmd.Type)
		}
		return handlers.Sync()
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}
