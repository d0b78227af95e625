package notifier

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Runner executes a command to completion.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Desktop raises a native notification through notify-send on Linux and
// osascript on macOS. Other platforms are silently skipped.
type Desktop struct {
	goos string
	run  Runner
}

func NewDesktop() *Desktop {
	return &Desktop{goos: runtime.GOOS, run: execRunner}
}

func newDesktopFor(goos string, run Runner) *Desktop {
	return &Desktop{goos: goos, run: run}
}

func (d *Desktop) Send(ctx context.Context, n Notification) error {
	var err error
	switch d.goos {
	case "linux":
		err = d.run(ctx, "notify-send", "--app-name=remindd", n.Title, n.Body)
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(n.Body), escapeAppleScript(n.Title))
		err = d.run(ctx, "osascript", "-e", script)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("notifier: desktop: %w", err)
	}
	return nil
}

func escapeAppleScript(in string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(in)
}
