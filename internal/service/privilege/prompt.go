package privilege

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrNotInteractive is returned when consent is requested without a terminal.
var ErrNotInteractive = errors.New("consent requires an interactive terminal, rerun with --yes to accept")

// TerminalPrompter asks for consent with a terminal confirm form.
type TerminalPrompter struct {
	// accessible renders the form without cursor movement.
	accessible bool
}

// NewTerminalPrompter creates a prompter bound to the process terminal.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{
		accessible: os.Getenv("ACCESSIBLE") != "",
	}
}

// IsInteractive reports whether stdin and stdout are terminals.
func IsInteractive() bool {
	return isTerminal(os.Stdin.Fd()) && isTerminal(os.Stdout.Fd())
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Confirm shows a yes/no question and waits for the answer.
func (p *TerminalPrompter) Confirm(ctx context.Context, title, description string) (bool, error) {
	if !IsInteractive() {
		return false, ErrNotInteractive
	}

	var confirmed bool

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Enable").
				Negative("Not now").
				Value(&confirmed),
		),
	).WithAccessible(p.accessible)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, ErrPromptAborted
		}

		return false, fmt.Errorf("run consent form: %w", err)
	}

	return confirmed, nil
}

// StaticPrompter answers every question with a fixed value.
type StaticPrompter bool

// Confirm returns the fixed answer.
func (p StaticPrompter) Confirm(context.Context, string, string) (bool, error) {
	return bool(p), nil
}
