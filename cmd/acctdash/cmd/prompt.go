package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
)

// confirm asks a yes/no question. Without a terminal it refuses rather
// than guessing.
func confirm(title, description string) (bool, error) {
	if !isTerminal(os.Stdin) {
		return false, fmt.Errorf("confirmation required: rerun with --yes")
	}
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}

// promptValue asks for a non-empty value, offering suggestions for
// completion.
func promptValue(title string, suggestions []string) (string, error) {
	if !isTerminal(os.Stdin) {
		return "", fmt.Errorf("no value given: pass --value")
	}
	var value string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Suggestions(suggestions).
				Value(&value).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("value must not be empty")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}
