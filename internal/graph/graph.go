// Package graph builds the action DAG for a root target: one linear chain
// of nodes per target's steps, joined by cross-target dependency edges, with
// cycles caught by a depth-first "currently on stack" membership test —
// the same shape as the teacher's Tarjan-based dalec/graph.go, simplified
// to a single DFS pass since emake's dependency edges are declared directly
// between targets rather than derived from package metadata.
package graph

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/dalecbuild/emake/internal/action"
	"github.com/dalecbuild/emake/internal/errs"
	"github.com/dalecbuild/emake/internal/loader"
	"github.com/dalecbuild/emake/internal/pathmodel"
	"github.com/dalecbuild/emake/internal/workspace"
)

// NodeID uniquely identifies one action node: a target id for a synthetic
// target-entry node, or "<target id>#<step index>" for a step node.
type NodeID string

// Node is one action in the DAG: either a real step (Step != nil) or a
// synthetic target-entry node standing in for a dependency-only target.
type Node struct {
	ID       NodeID
	TargetID string
	WorkDir  string
	Step     *loader.Step
	Inputs   []string
	Outputs  []string
	// InputCredentials maps an entry of Inputs to the secret name that
	// authenticates fetching it, for input file references declared as
	// {file, credentials} (spec.md §3) rather than a bare path.
	InputCredentials map[string]string
	In               []NodeID
	Out              []NodeID
	Parallel         bool
}

// Graph is the materialized DAG for one root target, plus the deterministic
// node insertion order the builder produced it in.
type Graph struct {
	Root  NodeID
	Nodes map[NodeID]*Node
	order []NodeID
}

func newGraph() *Graph {
	return &Graph{Nodes: make(map[NodeID]*Node)}
}

func (g *Graph) addNode(n *Node) {
	g.Nodes[n.ID] = n
	g.order = append(g.order, n.ID)
}

// Ordered returns every node in the order the builder created them —
// deterministic for a fixed input repository, per spec.
func (g *Graph) Ordered() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.Nodes[id])
	}
	return out
}

// TemplateCompiler mirrors the subset of internal/template the builder
// needs, kept narrow so graph doesn't depend on template's concrete
// Compiler type.
type TemplateCompiler interface {
	Compile(content, buildfilePath string, runtime map[string]string) (string, error)
}

// Builder walks target dependency references and step declarations into a
// Graph, compiling every input/output path against the workspace-constant
// runtime replacements known at build time (EMAKE_WORKING_DIR, EMAKE_OUT_DIR,
// EMAKE_CWD_DIR) — in_files/out_files themselves are resolved later, per
// action, not here.
type Builder struct {
	Loader        *loader.Loader
	Template      TemplateCompiler
	Workspace     workspace.Layout
	WorkspaceRoot string
}

type span struct {
	entry NodeID
	exit  NodeID
}

// Build materializes the DAG reachable from rootRef, a target reference
// resolved relative to referringDir (typically the current working
// directory for a CLI invocation).
func (b *Builder) Build(rootRef, referringDir string) (*Graph, error) {
	rootID, err := pathmodel.Normalize(rootRef, referringDir, b.WorkspaceRoot)
	if err != nil {
		return nil, err
	}

	g := newGraph()
	visited := make(map[string]span)
	onStack := make(map[string]bool)
	var stackPath []string

	var visit func(targetID string) (span, error)
	visit = func(targetID string) (span, error) {
		if s, ok := visited[targetID]; ok {
			return s, nil
		}
		if onStack[targetID] {
			path := append(append([]string{}, stackPath...), targetID)
			return span{}, &errs.CycleError{Path: path}
		}

		onStack[targetID] = true
		stackPath = append(stackPath, targetID)
		defer func() {
			onStack[targetID] = false
			stackPath = stackPath[:len(stackPath)-1]
		}()

		tgt, doc, err := b.Loader.LookupTarget(targetID)
		if err != nil {
			return span{}, err
		}
		buildfileDir := filepath.Dir(doc.Path)

		depNames := append([]string(nil), tgt.Deps...)
		sort.Strings(depNames)
		var depExits []NodeID
		for _, dep := range depNames {
			depID, err := pathmodel.Normalize(dep, buildfileDir, b.WorkspaceRoot)
			if err != nil {
				return span{}, err
			}
			s, err := visit(depID)
			if err != nil {
				return span{}, err
			}
			depExits = append(depExits, s.exit)
		}

		if len(tgt.Steps) == 0 {
			id := NodeID(targetID)
			node := &Node{ID: id, TargetID: targetID, WorkDir: buildfileDir, In: depExits}
			g.addNode(node)
			linkParents(g, depExits, id)
			s := span{entry: id, exit: id}
			visited[targetID] = s
			return s, nil
		}

		var firstID, prevID NodeID
		for i := range tgt.Steps {
			step := tgt.Steps[i]
			id := NodeID(fmt.Sprintf("%s#%d", targetID, i))

			inputs, outputs, creds, err := b.resolveIO(step, buildfileDir)
			if err != nil {
				return span{}, errors.Wrapf(err, "target %q step %d", targetID, i)
			}

			node := &Node{
				ID:               id,
				TargetID:         targetID,
				WorkDir:          buildfileDir,
				Step:             &tgt.Steps[i],
				Inputs:           inputs,
				Outputs:          outputs,
				InputCredentials: creds,
				Parallel:         tgt.IsParallel(),
			}
			if i == 0 {
				node.In = depExits
				firstID = id
			} else {
				node.In = []NodeID{prevID}
			}
			g.addNode(node)
			if i > 0 {
				g.Nodes[prevID].Out = append(g.Nodes[prevID].Out, id)
			}
			prevID = id
		}
		linkParents(g, depExits, firstID)

		s := span{entry: firstID, exit: prevID}
		visited[targetID] = s
		return s, nil
	}

	s, err := visit(rootID)
	if err != nil {
		return nil, err
	}
	g.Root = s.entry
	return g, nil
}

func linkParents(g *Graph, parents []NodeID, child NodeID) {
	for _, p := range parents {
		if n, ok := g.Nodes[p]; ok {
			n.Out = append(n.Out, child)
		}
	}
}

// resolveIO compiles a step's declared and variant-implied input/output
// paths against the workspace-constant runtime replacements known at graph
// build time. creds maps a compiled input path back to its declared
// credentials secret name, for {file, credentials} input references
// (spec.md §3) that authenticate a downloadable input's fetch.
func (b *Builder) resolveIO(step loader.Step, buildfileDir string) (inputs, outputs []string, creds map[string]string, err error) {
	runtime := map[string]string{
		"EMAKE_WORKING_DIR": b.Workspace.WorkingDir(),
		"EMAKE_OUT_DIR":     b.Workspace.OutDir(),
		"EMAKE_CWD_DIR":     buildfileDir,
	}
	buildfilePath := filepath.Join(buildfileDir, pathmodel.BuildfileName)

	for _, ref := range action.EnumerateInputs(step) {
		compiled, err := b.Template.Compile(ref.File, buildfilePath, runtime)
		if err != nil {
			return nil, nil, nil, err
		}
		inputs = append(inputs, compiled)
		if ref.Credentials != "" {
			if creds == nil {
				creds = make(map[string]string)
			}
			creds[compiled] = ref.Credentials
		}
	}
	for _, out := range action.EnumerateOutputs(step) {
		compiled, err := b.Template.Compile(out, buildfilePath, runtime)
		if err != nil {
			return nil, nil, nil, err
		}
		outputs = append(outputs, compiled)
	}
	return inputs, outputs, creds, nil
}

// DOT writes the graph in Graphviz dot format, each node labeled by its id
// and action kind, edges drawn parent-to-child (dependency executes first).
func (g *Graph) DOT(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph emake {"); err != nil {
		return err
	}
	for _, n := range g.Ordered() {
		label := n.TargetID
		if n.Step != nil {
			label = fmt.Sprintf("%s\\n%s", n.TargetID, kindLabel(n.Step))
		}
		if _, err := fmt.Fprintf(w, "  %q [label=%q];\n", n.ID, label); err != nil {
			return err
		}
	}
	for _, n := range g.Ordered() {
		for _, out := range n.Out {
			if _, err := fmt.Fprintf(w, "  %q -> %q;\n", n.ID, out); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

func kindLabel(step *loader.Step) string {
	k := step.Kind()
	if k == "" {
		return "entry"
	}
	return k
}
