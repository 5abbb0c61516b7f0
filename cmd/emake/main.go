// Command emake is the build-orchestrator CLI: build, clean, graph, init,
// and keyring store|clear. Command registration follows the teacher pack's
// github.com/githubnext/gh-aw cmd/gh-aw/main.go almost verbatim — a root
// cobra.Command with a Run that prints help when no subcommand is given, a
// persistent --cwd flag, and one leaf command per verb — the same
// cobra-shaped verb wrapping petar-djukic-mage-claude-orchestrator's
// magefiles/magefile.go uses for its own build tasks.
package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dalecbuild/emake/internal/runctx"
	"github.com/dalecbuild/emake/internal/secret"
)

var cwd string

var rootCmd = &cobra.Command{
	Use:     "emake",
	Short:   "Declarative YAML build orchestrator",
	Version: "dev",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cwd, "cwd", ".", "workspace root (overrides the current directory)")
	buildCmd.Flags().BoolVar(&notsilent, "notsilent", false, "stream each action's raw output lines onto the progress tree")
	rootCmd.AddCommand(buildCmd, cleanCmd, graphCmd, initCmd, keyringCmd)
}

func workspaceRoot() (string, error) {
	return filepath.Abs(cwd)
}

var notsilent bool

var buildCmd = &cobra.Command{
	Use:   "build <target>",
	Short: "Build a target and its dependencies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot()
		if err != nil {
			return err
		}
		rc := runctx.New(root)
		rc.Log.Verbose = notsilent
		_, err = rc.Build(context.Background(), args[0], root)
		return err
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Wipe persisted state and run every declared clean step",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot()
		if err != nil {
			return err
		}
		return runctx.New(root).Clean()
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph <target>",
	Short: "Print the build graph rooted at a target, in Graphviz dot format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot()
		if err != nil {
			return err
		}
		rc := runctx.New(root)
		g, err := rc.GraphBuilder().Build(args[0], root)
		if err != nil {
			return err
		}
		return g.DOT(os.Stdout)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a starter Emakefile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot()
		if err != nil {
			return err
		}
		return runctx.New(root).Init()
	},
}

var keyringCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Manage OS-keychain secrets used by the keyring credential plugin",
}

var keyringForce bool

func init() {
	keyringCmd.AddCommand(keyringStoreCmd, keyringClearCmd)
	keyringStoreCmd.Flags().BoolVar(&keyringForce, "force", false, "overwrite an existing entry")
}

var keyringStoreCmd = &cobra.Command{
	Use:   "store <service> <name>",
	Short: "Store a secret read from stdin under the OS keychain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := secret.ReadStdinSecret(os.Stdin)
		if err != nil {
			return err
		}
		return secret.Store(args[0], args[1], value, keyringForce)
	},
}

var keyringClearCmd = &cobra.Command{
	Use:   "clear <service> <name>",
	Short: "Remove a secret from the OS keychain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return secret.Clear(args[0], args[1])
	},
}

func main() {
	rootCmd.SetOut(os.Stderr)
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
