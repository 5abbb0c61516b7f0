// Package runctx bundles the state one `emake` invocation shares across its
// loader, template compiler, secret registry and scheduler, in place of the
// package-level statics original_source/src/cache.rs and
// original_source/src/graph/runner.rs reach for (CACHE ONCE cells, a
// process-wide tokio::sync::Semaphore). The progress tree is one
// *logger.Tree built by New and held in Context.Log like everything else;
// all of it threads through here explicitly.
package runctx

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dalecbuild/emake/internal/action"
	"github.com/dalecbuild/emake/internal/cache"
	"github.com/dalecbuild/emake/internal/graph"
	"github.com/dalecbuild/emake/internal/loader"
	"github.com/dalecbuild/emake/internal/logger"
	"github.com/dalecbuild/emake/internal/pathmodel"
	"github.com/dalecbuild/emake/internal/runner"
	"github.com/dalecbuild/emake/internal/secret"
	"github.com/dalecbuild/emake/internal/template"
	"github.com/dalecbuild/emake/internal/workspace"
)

// Context is the explicit, run-scoped state carrier for one `emake`
// command invocation: one Loader (and its buildfile parse cache), one
// secret Registry/Resolver pair, one cache Store, and the permit
// configuration the Runner is built with. Constructed once per process by
// cmd/emake and passed down by value/pointer to whichever subcommand needs
// it; nothing here is a package-level variable.
type Context struct {
	WorkspaceRoot string

	Loader   *loader.Loader
	Template *template.Compiler
	Secrets  *secret.Registry
	Resolver *secret.Resolver
	Cache    *cache.Store
	Log      *logger.Tree

	// Permits and BlockingWorkers configure every Runner built from this
	// Context; zero means runner.DefaultPermits / runtime.GOMAXPROCS(0).
	Permits         int
	BlockingWorkers int
}

// New wires a fresh Context rooted at workspaceRoot: a Loader, a template
// Compiler bound to it, a secret Registry with the plain and keyring
// plugins registered (spec §6), a Resolver over both, and a cache.Store
// over the workspace's persisted-state layout.
func New(workspaceRoot string) *Context {
	l := loader.New()
	reg := secret.NewRegistry()
	resolver := secret.NewResolver(l, reg)
	compiler := &template.Compiler{
		Vars:          l,
		Secrets:       resolver,
		WorkspaceRoot: workspaceRoot,
	}
	layout := workspace.New(workspaceRoot)

	return &Context{
		WorkspaceRoot: workspaceRoot,
		Loader:        l,
		Template:      compiler,
		Secrets:       reg,
		Resolver:      resolver,
		Cache:         cache.New(layout),
		Log:           logger.New(),
	}
}

// GraphBuilder returns a graph.Builder sharing this Context's Loader,
// Template compiler and workspace layout, ready to build the DAG rooted at
// one target reference.
func (c *Context) GraphBuilder() *graph.Builder {
	return &graph.Builder{
		Loader:        c.Loader,
		Template:      c.Template,
		Workspace:     workspace.New(c.WorkspaceRoot),
		WorkspaceRoot: c.WorkspaceRoot,
	}
}

// Runner builds a runner.Runner over g, sharing this Context's cache store
// and secret lookup, logging through this Context's progress tree.
func (c *Context) Runner(g *graph.Graph) *runner.Runner {
	r := runner.New(g, c.Cache, action.Context{
		WorkDir: c.WorkspaceRoot,
		Secrets: c.Resolver,
		Log:     nil,
	}, c.Log)
	r.Permits = c.Permits
	r.BlockingWorkers = c.BlockingWorkers
	r.Template = c.Template
	return r
}

// Build loads rootRef's graph and runs it to completion or first failure,
// the sequence every `emake build` invocation performs.
func (c *Context) Build(ctx context.Context, rootRef, referringDir string) (*graph.Graph, error) {
	g, err := c.GraphBuilder().Build(rootRef, referringDir)
	if err != nil {
		return nil, err
	}
	if err := c.Runner(g).Run(ctx); err != nil {
		return g, err
	}
	return g, nil
}

// Clean wipes the .emake/ persisted-state tree and then runs every step's
// declared `clean` string (an opaque shell command) in every Emakefile
// found under the workspace root: files in directory-walk order, steps of
// one target in declaration order; the order of targets within one file is
// not defined. Clean is
// never part of build's dependency graph: a malformed `clean` string is
// logged, not fatal, and never stops the sweep from reaching the next step.
func (c *Context) Clean() error {
	layout := workspace.New(c.WorkspaceRoot)
	if err := os.RemoveAll(layout.StateDir()); err != nil {
		return err
	}

	return filepath.WalkDir(c.WorkspaceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != pathmodel.BuildfileName {
			return nil
		}

		doc, err := c.Loader.Load(path)
		if err != nil {
			logrus.WithField("buildfile", path).WithError(err).Warn("skipping unparseable buildfile during clean")
			return nil
		}

		dir := filepath.Dir(path)
		for name, tgt := range doc.Targets {
			for i, step := range tgt.Steps {
				if step.Clean == "" {
					continue
				}
				if err := runCleanStep(dir, step.Clean); err != nil {
					logrus.WithFields(logrus.Fields{
						"buildfile": path,
						"target":    name,
						"step":      i,
					}).WithError(err).Warn("clean step failed")
				}
			}
		}
		return nil
	})
}

// defaultBuildfile is the starter `Emakefile` scaffolded by `emake init`,
// mirroring original_source/src/commands/init.rs's single hello_world
// target with one shell step.
const defaultBuildfile = `targets:
  hello_world:
    steps:
      - shell:
          cmd: "echo hello world"
`

// Init scaffolds a starter Emakefile at the workspace root, refusing to
// overwrite one that already exists.
func (c *Context) Init() error {
	path := filepath.Join(c.WorkspaceRoot, pathmodel.BuildfileName)
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("%s already exists", path)
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(defaultBuildfile), 0o644)
}

func runCleanStep(dir, command string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/C", command)
	} else {
		cmd = exec.Command("sh", "-c", command)
	}
	cmd.Dir = dir
	return cmd.Run()
}
