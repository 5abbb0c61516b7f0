package main

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// TestCommandsRegistered checks that every top-level verb this binary
// exposes is actually wired under the root command.
func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"build", "clean", "graph", "init", "keyring"} {
		if !names[want] {
			t.Errorf("root command missing %q", want)
		}
	}
}

func TestKeyringSubcommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range keyringCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"store", "clear"} {
		if !names[want] {
			t.Errorf("keyring command missing %q", want)
		}
	}
}

func TestShortDescriptionsHaveNoTrailingPunctuation(t *testing.T) {
	all := []*cobra.Command{rootCmd, buildCmd, cleanCmd, graphCmd, initCmd, keyringCmd, keyringStoreCmd, keyringClearCmd}
	for _, c := range all {
		if c.Short == "" {
			continue
		}
		last := c.Short[len(c.Short)-1:]
		if strings.ContainsAny(last, ".!?") {
			t.Errorf("%s: Short description %q ends with punctuation", c.Name(), c.Short)
		}
	}
}
