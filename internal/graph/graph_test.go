package graph

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/dalecbuild/emake/internal/loader"
	"github.com/dalecbuild/emake/internal/template"
	"github.com/dalecbuild/emake/internal/workspace"
)

func newBuilder(t *testing.T, root string) (*Builder, *loader.Loader) {
	t.Helper()
	l := loader.New()
	compiler := &template.Compiler{Vars: l, WorkspaceRoot: root}
	b := &Builder{
		Loader:        l,
		Template:      compiler,
		Workspace:     workspace.New(root),
		WorkspaceRoot: root,
	}
	return b, l
}

func TestBuildLinearChainWithinOneTarget(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, `
targets:
  a:
    steps:
      - shell:
          cmd: "echo one"
      - shell:
          cmd: "echo two"
`)

	b, _ := newBuilder(t, dir)
	g, err := b.Build(":a", dir)
	assert.NilError(t, err)
	assert.Check(t, cmp.Len(g.Nodes, 2))

	root := g.Nodes[g.Root]
	assert.Check(t, cmp.Len(root.Out, 1))
	next := g.Nodes[root.Out[0]]
	assert.Check(t, cmp.Len(next.In, 1))
	assert.Check(t, cmp.Equal(next.In[0], root.ID))
}

func TestBuildDependencyEdgeFromTerminalToEntry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, `
targets:
  dep:
    steps:
      - shell:
          cmd: "echo dep"
  root:
    deps:
      - :dep
    steps:
      - shell:
          cmd: "echo root"
`)

	b, _ := newBuilder(t, dir)
	g, err := b.Build(":root", dir)
	assert.NilError(t, err)
	assert.Check(t, cmp.Len(g.Nodes, 2))

	rootNode := g.Nodes[g.Root]
	assert.Check(t, cmp.Len(rootNode.In, 1))

	depExit := rootNode.In[0]
	depNode := g.Nodes[depExit]
	assert.Check(t, cmp.Len(depNode.Out, 1))
	assert.Check(t, cmp.Equal(depNode.Out[0], rootNode.ID))
}

func TestBuildFanIn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, `
targets:
  a:
    steps:
      - shell:
          cmd: "echo a"
  b:
    steps:
      - shell:
          cmd: "echo b"
  c:
    deps:
      - :a
      - :b
    steps:
      - shell:
          cmd: "echo c"
`)

	b, _ := newBuilder(t, dir)
	g, err := b.Build(":c", dir)
	assert.NilError(t, err)
	assert.Check(t, cmp.Len(g.Nodes, 3))

	cNode := g.Nodes[g.Root]
	assert.Check(t, cmp.Len(cNode.In, 2))
}

func TestBuildZeroStepTargetGetsSyntheticEntry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, `
targets:
  empty:
    deps: []
  root:
    deps:
      - :empty
    steps:
      - shell:
          cmd: "echo hi"
`)

	b, _ := newBuilder(t, dir)
	g, err := b.Build(":root", dir)
	assert.NilError(t, err)

	var sawSynthetic bool
	for _, n := range g.Ordered() {
		if n.Step == nil {
			sawSynthetic = true
		}
	}
	assert.Check(t, sawSynthetic)
}

func TestBuildDetectsCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, `
targets:
  x:
    deps:
      - :y
    steps:
      - shell:
          cmd: "echo x"
  y:
    deps:
      - :x
    steps:
      - shell:
          cmd: "echo y"
`)

	b, _ := newBuilder(t, dir)
	_, err := b.Build(":x", dir)
	assert.Check(t, err != nil)
	assert.Check(t, cmp.Contains(err.Error(), "cycle"))
}

func TestDOTRendersEveryNodeAndEdge(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, `
targets:
  a:
    steps:
      - shell:
          cmd: "echo one"
      - shell:
          cmd: "echo two"
`)

	b, _ := newBuilder(t, dir)
	g, err := b.Build(":a", dir)
	assert.NilError(t, err)

	var sb strings.Builder
	assert.NilError(t, g.DOT(&sb))
	out := sb.String()
	assert.Check(t, strings.HasPrefix(out, "digraph emake {"))
	assert.Check(t, cmp.Contains(out, "->"))
}

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "Emakefile")
	assert.NilError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}
