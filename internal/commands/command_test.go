package commands

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseSupportedCommands(t *testing.T) {
	cases := []struct {
		in       string
		typeWant Type
	}{
		{"/add pay rent @ tomorrow 09:00", TypeAdd},
		{"snooze next 2h", TypeSnooze},
		{"complete 3f2a", TypeComplete},
		{"done 3f2a", TypeComplete},
		{"dismiss next", TypeDismiss},
		{"show active tag:finance", TypeShow},
		{"ls", TypeShow},
		{"reschedule next next monday", TypeReschedule},
		{"/sync", TypeSync},
	}

	for _, tc := range cases {
		cmd, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("parse %q failed: %v", tc.in, err)
		}
		if cmd.Type != tc.typeWant {
			t.Fatalf("parse %q type = %s, want %s", tc.in, cmd.Type, tc.typeWant)
		}
	}
}

func TestParseAddOptions(t *testing.T) {
	cmd, err := Parse("add water the plants @ fri 18:30 every:weekly/2 before:15m deadline:sat priority:high group:home tag:garden tag:chores")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := AddArgs{
		Title:    "water the plants",
		When:     "fri 18:30",
		Every:    "weekly/2",
		Before:   "15m",
		Deadline: "sat",
		Priority: "high",
		Group:    "home",
		Tags:     []string{"garden", "chores"},
	}
	if !reflect.DeepEqual(*cmd.Add, want) {
		t.Fatalf("add args = %+v, want %+v", *cmd.Add, want)
	}

	cmd, err = Parse("add call mum @tomorrow")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.Add.Title != "call mum" || cmd.Add.When != "tomorrow" {
		t.Fatalf("unexpected add args %+v", *cmd.Add)
	}
}

func TestParseInvalidArguments(t *testing.T) {
	for _, in := range []string{"add", "add @ tomorrow", "snooze next", "complete", "complete a b", "show later", "reschedule next"} {
		_, err := Parse(in)
		var ce *CommandError
		if !errors.As(err, &ce) || ce.Code != ErrCodeInvalidArgument {
			t.Fatalf("parse %q: expected invalid argument, got %v", in, err)
		}
	}
}

func TestParseEmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "/"} {
		_, err := Parse(in)
		var ce *CommandError
		if !errors.As(err, &ce) || ce.Code != ErrCodeEmptyInput {
			t.Fatalf("parse %q: expected empty input error, got %v", in, err)
		}
	}
}

func TestParseUnknownCommand(t *testing.T) {
	_, err := Parse("/unknown do x")
	if err == nil {
		t.Fatal("expected error")
	}
	var ce *CommandError
	if !errors.As(err, &ce) || ce.Code != ErrCodeUnknownCommand {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestExecuteDispatch(t *testing.T) {
	cmd, err := Parse("/add write docs")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	called := false
	res, err := Execute(cmd, Handlers{
		Add: func(a AddArgs) (Result, error) {
			called = true
			if a.Title != "write docs" {
				t.Fatalf("unexpected title: %q", a.Title)
			}
			return Result{Message: "ok"}, nil
		},
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !called || res.Message != "ok" {
		t.Fatalf("dispatch failed, called=%v res=%+v", called, res)
	}
}

func TestExecuteMissingHandler(t *testing.T) {
	for _, in := range []string{"show active", "sync", "dismiss next", "complete next"} {
		cmd, err := Parse(in)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		_, err = Execute(cmd, Handlers{})
		var ce *CommandError
		if !errors.As(err, &ce) || ce.Code != ErrCodeHandlerMissing {
			t.Fatalf("%q: expected missing handler error, got %v", in, err)
		}
	}
}
