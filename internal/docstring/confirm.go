package docstring

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
)

// Confirmer decides whether the docstrings planned for a file are written.
type Confirmer interface {
	Confirm(ctx context.Context, path string) (bool, error)
}

// PromptConfirmer asks on the terminal with a yes/no prompt.
type PromptConfirmer struct{}

func (PromptConfirmer) Confirm(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok := true
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Write docstrings to %s?", path)).
			Affirmative("Yes").
			Negative("Skip").
			Value(&ok),
	)).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, context.Canceled
	}
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, path string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, path string) (bool, error) {
	return f(ctx, path)
}
