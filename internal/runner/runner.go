// Package runner schedules a graph.Graph's action nodes under bounded
// concurrency: a node starts once every incoming edge's source has settled,
// a global semaphore gates total in-flight actions, and a fatal failure
// cancels scheduling of any not-yet-started descendant. Grounded on
// original_source/src/graph/runner.rs's bfs_parallel — a per-node async
// task spawned once its in-neighbors are joined, gated by a
// tokio::sync::Semaphore(15) — translated into golang.org/x/sync/errgroup
// plus semaphore.Weighted, the idiomatic Go equivalent of "spawn a task per
// node, await predecessors, bound total concurrency with a semaphore."
package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dalecbuild/emake/internal/action"
	"github.com/dalecbuild/emake/internal/cache"
	"github.com/dalecbuild/emake/internal/graph"
	"github.com/dalecbuild/emake/internal/pathmodel"
)

// DefaultPermits is the global concurrency bound, the same default original
// source's run_target hard-codes as Semaphore::new(15).
const DefaultPermits = 15

// Status is a node's position in the state machine spec §4.7 names:
// Pending -> Ready -> Running -> {Done, Failed, Skipped}.
type Status int

const (
	Pending Status = iota
	Ready
	Running
	Done
	Failed
	Skipped
)

// Logger receives lifecycle transitions for one action node. Satisfied by
// internal/logger.Tree in production.
type Logger interface {
	NodeProgress(id graph.NodeID, targetID string)
	NodeDone(id graph.NodeID)
	NodeFailed(id graph.NodeID, err error)
	NodeSkipped(id graph.NodeID)
}

// TemplateCompiler mirrors the subset of internal/template's Compile
// contract the runner needs to bind a node's {{ … }} placeholders (yaml-edit
// Set values, and any other field an action variant wants compiled at run
// time) to that node's own buildfile and workspace-relative runtime vars.
type TemplateCompiler interface {
	Compile(content, buildfilePath string, runtime map[string]string) (string, error)
}

// templateAdapter binds a TemplateCompiler to one node's buildfile path and
// runtime vars, satisfying action.TemplateCompiler's single-string contract.
type templateAdapter struct {
	compiler      TemplateCompiler
	buildfilePath string
	runtime       map[string]string
}

func (a templateAdapter) CompileString(s string) (string, error) {
	return a.compiler.Compile(s, a.buildfilePath, a.runtime)
}

// ActionWriterProvider is an optional Logger capability: a tree-backed
// logger hands each node its own action.ProgressSink so a shell command's
// streamed output lands in the right tree row. Loggers that don't implement
// it (e.g. test fakes) simply leave action.Context.Log at its prior value.
type ActionWriterProvider interface {
	ActionWriter(id graph.NodeID) action.ProgressSink
}

// Runner executes a Graph's nodes to completion or first failure.
type Runner struct {
	Graph   *graph.Graph
	Cache   *cache.Store
	Action  action.Context
	Log     Logger
	Permits int // 0 means DefaultPermits
	// BlockingWorkers bounds how many Archive/GitClone actions may run at
	// once, independent of Permits, so compression and network transfer
	// never crowd out the cooperative actions sharing the main semaphore.
	BlockingWorkers int // 0 means runtime.GOMAXPROCS(0)
	// Template, if set, lets a node's action body reference {{ … }}
	// placeholders (e.g. a yaml-edit Set value) the same way declared
	// inputs/outputs do at graph-build time.
	Template TemplateCompiler

	mu       sync.Mutex
	statuses map[graph.NodeID]Status
}

func New(g *graph.Graph, store *cache.Store, actx action.Context, log Logger) *Runner {
	return &Runner{
		Graph:    g,
		Cache:    store,
		Action:   actx,
		Log:      log,
		statuses: make(map[graph.NodeID]Status),
	}
}

func (r *Runner) permits() int {
	if r.Permits > 0 {
		return r.Permits
	}
	return DefaultPermits
}

func (r *Runner) blockingWorkers() int {
	if r.BlockingWorkers > 0 {
		return r.BlockingWorkers
	}
	return runtime.GOMAXPROCS(0)
}

// Status returns the current state of a node, Pending if never observed.
func (r *Runner) Status(id graph.NodeID) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[id]
}

func (r *Runner) setStatus(id graph.NodeID, s Status) {
	r.mu.Lock()
	r.statuses[id] = s
	r.mu.Unlock()
}

// Run schedules every node in the graph, returning the first fatal error
// encountered. Already-running peers of a failed node are joined before
// this returns, per spec §4.7's cancellation contract.
func (r *Runner) Run(ctx context.Context) error {
	nodes := r.Graph.Ordered()

	done := make(map[graph.NodeID]chan struct{}, len(nodes))
	for _, n := range nodes {
		done[n.ID] = make(chan struct{})
	}

	eg, egCtx := errgroup.WithContext(ctx)
	mainSem := semaphore.NewWeighted(int64(r.permits()))
	blockingSem := semaphore.NewWeighted(int64(r.blockingWorkers()))

	for _, n := range nodes {
		n := n
		eg.Go(func() error {
			defer close(done[n.ID])

			for _, parent := range n.In {
				select {
				case <-done[parent]:
				case <-egCtx.Done():
					r.setStatus(n.ID, Skipped)
					return nil
				}
			}

			if egCtx.Err() != nil {
				r.setStatus(n.ID, Skipped)
				return nil
			}

			if n.Step == nil {
				r.setStatus(n.ID, Done)
				return nil
			}

			r.setStatus(n.ID, Ready)

			if err := mainSem.Acquire(egCtx, 1); err != nil {
				r.setStatus(n.ID, Skipped)
				return nil
			}
			defer mainSem.Release(1)

			if isBlocking(n) {
				if err := blockingSem.Acquire(egCtx, 1); err != nil {
					r.setStatus(n.ID, Skipped)
					return nil
				}
				defer blockingSem.Release(1)
			}

			return r.runNode(n)
		})
	}

	return eg.Wait()
}

func isBlocking(n *graph.Node) bool {
	return n.Step.Archive != nil || n.Step.GitClone != nil
}

// nodeBuildfilePath returns the absolute path of the buildfile that
// declared n's step, the key every secret/variable lookup is anchored to —
// distinct from n.WorkDir, which is only the directory the node's action
// runs in.
func nodeBuildfilePath(n *graph.Node) string {
	return filepath.Join(n.WorkDir, pathmodel.BuildfileName)
}

// resolveRemoteInputs substitutes any http(s) input reference with the
// local path of its once-fetched copy before fingerprinting or execution
// sees it, so Copy/Extract/Archive steps can declare a downloadable URL as
// an in_files entry the same way original_source's runner does. An input
// declared with {file, credentials} resolves its named secret through the
// action's SecretLookup and sends it as a bearer token on the fetch.
func (r *Runner) resolveRemoteInputs(n *graph.Node) error {
	for i, in := range n.Inputs {
		if !cache.IsDownloadableInput(in) {
			continue
		}
		var bearer string
		if name, ok := n.InputCredentials[in]; ok && r.Action.Secrets != nil {
			token, err := r.Action.Secrets.ResolveSecretByName(nodeBuildfilePath(n), name)
			if err != nil {
				return err
			}
			bearer = token
		}
		local, err := r.Cache.ResolveRemoteInput(in, bearer)
		if err != nil {
			return err
		}
		n.Inputs[i] = local
	}
	return nil
}

func (r *Runner) runNode(n *graph.Node) error {
	r.setStatus(n.ID, Running)
	if r.Log != nil {
		r.Log.NodeProgress(n.ID, n.TargetID)
	}

	if err := r.resolveRemoteInputs(n); err != nil {
		r.setStatus(n.ID, Failed)
		if r.Log != nil {
			r.Log.NodeFailed(n.ID, err)
		}
		return err
	}

	footprint, err := cache.Footprint(n.Step)
	if err != nil {
		r.setStatus(n.ID, Failed)
		if r.Log != nil {
			r.Log.NodeFailed(n.ID, err)
		}
		return err
	}

	checksum, hasChecksum := action.DeclaredChecksum(*n.Step)
	shouldRun, err := r.Cache.ShouldRun(string(n.ID), footprint, n.Inputs, n.Outputs, checksum, hasChecksum)
	if err != nil {
		r.setStatus(n.ID, Failed)
		if r.Log != nil {
			r.Log.NodeFailed(n.ID, err)
		}
		return err
	}

	if !shouldRun {
		r.setStatus(n.ID, Skipped)
		if r.Log != nil {
			r.Log.NodeSkipped(n.ID)
		}
		return nil
	}

	actx := r.Action
	actx.WorkDir = n.WorkDir
	actx.BuildfilePath = nodeBuildfilePath(n)
	if p, ok := r.Log.(ActionWriterProvider); ok {
		actx.Log = p.ActionWriter(n.ID)
	}
	if r.Template != nil {
		runtimeVars := map[string]string{
			"EMAKE_WORKING_DIR": r.Cache.Layout.WorkingDir(),
			"EMAKE_OUT_DIR":     r.Cache.Layout.OutDir(),
			"EMAKE_CWD_DIR":     n.WorkDir,
			"in_files":          strings.Join(n.Inputs, " "),
			"out_files":         strings.Join(n.Outputs, " "),
		}
		for i, f := range n.Inputs {
			runtimeVars[fmt.Sprintf("in_files[%d]", i)] = f
		}
		for i, f := range n.Outputs {
			runtimeVars[fmt.Sprintf("out_files[%d]", i)] = f
		}
		actx.Template = templateAdapter{
			compiler:      r.Template,
			buildfilePath: actx.BuildfilePath,
			runtime:       runtimeVars,
		}
	}
	if err := action.Execute(actx, string(n.ID), *n.Step, n.Inputs, n.Outputs); err != nil {
		r.setStatus(n.ID, Failed)
		if r.Log != nil {
			r.Log.NodeFailed(n.ID, err)
		}
		return err
	}

	if err := r.Cache.RecordSuccess(string(n.ID), footprint, n.Inputs, n.Outputs, checksum, hasChecksum); err != nil {
		// Cache write failures are non-fatal: the action itself succeeded,
		// only the next run's incrementality decision is affected.
		if r.Log != nil {
			r.Log.NodeDone(n.ID)
		}
		r.setStatus(n.ID, Done)
		return nil
	}

	r.setStatus(n.ID, Done)
	if r.Log != nil {
		r.Log.NodeDone(n.ID)
	}
	return nil
}
