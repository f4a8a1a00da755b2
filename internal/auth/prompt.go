package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog"

	"github.com/synctogit/synctogit/internal/service"
)

// ErrBatchMode is returned when credentials are needed but prompting is
// disabled.
var ErrBatchMode = fmt.Errorf("%w: credentials required but running in batch mode", service.ErrAuth)

// Prompter asks the user for a backend token.
type Prompter interface {
	PromptToken(ctx context.Context, d service.Descriptor) (string, error)
}

// FormPrompter asks for the token with a terminal form.
type FormPrompter struct {
	// Accessible renders plain prompts instead of the TUI.
	Accessible bool
}

// PromptToken implements Prompter. Aborting the form returns
// service.ErrUserCancelled.
func (p FormPrompter) PromptToken(ctx context.Context, d service.Descriptor) (string, error) {
	proceed := true
	var token string

	description := d.TokenPrompt
	if description == "" {
		description = fmt.Sprintf("Paste the API token for %s.", d.Name)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Continue authentication with %s?", d.Name)).
				Description("The API token is missing. Do you want to enter a new one?").
				Affirmative("Yes").
				Negative("Cancel").
				Value(&proceed),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("API token").
				Description(description).
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("token cannot be empty")
					}
					return nil
				}).
				Value(&token),
		).WithHideFunc(func() bool { return !proceed }),
	).WithAccessible(p.Accessible)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", service.ErrUserCancelled
		}
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	if !proceed {
		return "", service.ErrUserCancelled
	}
	return strings.TrimSpace(token), nil
}

// Session resolves the token of a backend.
type Session struct {
	Store    *Store
	Prompter Prompter

	// Batch disables prompting.
	Batch bool

	Logger zerolog.Logger
}

// Token returns the stored token of d, prompting for a new one when none
// is stored. Backends without authentication get an empty token.
func (s *Session) Token(ctx context.Context, d service.Descriptor) (string, error) {
	if !d.NeedsToken {
		return "", nil
	}

	token, err := s.Store.Load(d.Name)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, ErrNoCredentials) {
		return "", err
	}

	s.Logger.Info().Str("backend", d.Name).Msg("Invalid auth session: no token stored")
	if s.Batch || s.Prompter == nil {
		return "", ErrBatchMode
	}

	token, err = s.Prompter.PromptToken(ctx, d)
	if err != nil {
		return "", err
	}
	if err := s.Store.Save(ctx, d.Name, token); err != nil {
		return "", err
	}
	return token, nil
}

// Forget removes the stored token of d, after the backend reported it as
// expired.
func (s *Session) Forget(ctx context.Context, d service.Descriptor) error {
	if !d.NeedsToken {
		return nil
	}
	s.Logger.Info().Str("backend", d.Name).Msg("Removing stored token")
	return s.Store.Remove(ctx, d.Name)
}
