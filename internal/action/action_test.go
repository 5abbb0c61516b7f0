package action

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/dalecbuild/emake/internal/errs"
	"github.com/dalecbuild/emake/internal/loader"
)

type fakeTemplate struct {
	upper bool
}

func (f fakeTemplate) CompileString(s string) (string, error) {
	if f.upper {
		return "COMPILED:" + s, nil
	}
	return s, nil
}

func TestEnumerateInputsCombinesDeclaredAndImplied(t *testing.T) {
	step := loader.Step{
		InFiles: []loader.InFileRef{{File: "declared.txt"}},
		Copy:    &loader.CopyAction{From: []string{"a.txt", "b.txt"}, To: []string{"out/"}},
	}
	refs := EnumerateInputs(step)
	assert.Check(t, cmp.Len(refs, 3))
	assert.Check(t, cmp.Equal(refs[0].File, "declared.txt"))
	assert.Check(t, cmp.Equal(refs[1].File, "a.txt"))
	assert.Check(t, cmp.Equal(refs[2].File, "b.txt"))
}

func TestEnumerateOutputsForGitClone(t *testing.T) {
	step := loader.Step{GitClone: &loader.GitCloneAction{URL: "https://example.com/r.git", Destination: "vendor/r"}}
	outs := EnumerateOutputs(step)
	assert.Check(t, cmp.Len(outs, 1))
	assert.Check(t, cmp.Equal(outs[0], "vendor/r"))
}

func TestDeclaredChecksum(t *testing.T) {
	_, ok := DeclaredChecksum(loader.Step{})
	assert.Check(t, !ok)

	sum, ok := DeclaredChecksum(loader.Step{Checksum: "abc123"})
	assert.Check(t, ok)
	assert.Check(t, cmp.Equal(sum, "abc123"))
}

func TestExecuteRejectsStepWithNoVariant(t *testing.T) {
	err := Execute(Context{}, "act1", loader.Step{}, nil, nil)
	assert.Check(t, err != nil)
}

func TestExecuteCopyThenRemove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	assert.NilError(t, os.WriteFile(src, []byte("hello"), 0o644))
	dst := filepath.Join(dir, "dst.txt")

	step := loader.Step{Copy: &loader.CopyAction{From: []string{src}, To: []string{dst}}}
	err := Execute(Context{}, "act1", step, []string{src}, []string{dst})
	assert.NilError(t, err)

	got, err := os.ReadFile(dst)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(string(got), "hello"))

	removeStep := loader.Step{Remove: &loader.RemoveAction{Paths: []string{dst}}}
	err = Execute(Context{}, "act2", removeStep, []string{dst}, nil)
	assert.NilError(t, err)
	_, statErr := os.Stat(dst)
	assert.Check(t, os.IsNotExist(statErr))
}

func TestExecuteWrapsErrorWithActionKind(t *testing.T) {
	step := loader.Step{Shell: &loader.ShellAction{Cmd: "exit 7"}}
	err := Execute(Context{}, "act1", step, nil, nil)
	assert.Check(t, err != nil)

	var actionErr *errs.ActionError
	assert.Assert(t, errors.As(err, &actionErr))
	assert.Check(t, cmp.Equal(actionErr.Kind, errs.KindShell))
	assert.Check(t, cmp.Equal(actionErr.ActionID, "act1"))
}

// substitutionTemplate is a minimal stand-in for internal/runner's
// templateAdapter, resolving literal tokens the way runtime replacements
// like {{ in_files[0] }}/{{ out_files[0] }} would.
type substitutionTemplate map[string]string

func (s substitutionTemplate) CompileString(in string) (string, error) {
	out := in
	for token, value := range s {
		out = strings.ReplaceAll(out, token, value)
	}
	return out, nil
}

func TestShellCompilesCommandThroughTemplate(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	step := loader.Step{Shell: &loader.ShellAction{Cmd: "echo {{ in_files[0] }} > {{ out_files[0] }}"}}
	ctx := Context{
		WorkDir: dir,
		Template: substitutionTemplate{
			"{{ in_files[0] }}":  "hi",
			"{{ out_files[0] }}": out,
		},
	}
	err := Execute(ctx, "act1", step, nil, nil)
	assert.NilError(t, err)

	got, err := os.ReadFile(out)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(string(got), "hi\n"))
}

func TestYamlEditMergeAndDelete(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	assert.NilError(t, os.WriteFile(base, []byte("name: orig\nkeep: 1\ndrop: 2\nnested:\n  a: 1\n"), 0o644))
	out := filepath.Join(dir, "out.yaml")

	step := &loader.YamlEditAction{
		From: base,
		To:   out,
		Set: map[string]interface{}{
			"name":   "patched",
			"drop":   nil,
			"nested": map[string]interface{}{"b": 2},
		},
	}
	err := runYamlEdit(Context{}, step)
	assert.NilError(t, err)

	got, err := os.ReadFile(out)
	assert.NilError(t, err)
	content := string(got)
	assert.Check(t, cmp.Contains(content, "name: patched"))
	assert.Check(t, cmp.Contains(content, "keep: 1"))
	assert.Check(t, !contains(content, "drop:"))
}

func TestYamlEditCompilesStringValuesThroughTemplate(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.yaml")

	step := &loader.YamlEditAction{
		To:  out,
		Set: map[string]interface{}{"greeting": "{{ name }}"},
	}
	ctx := Context{Template: fakeTemplate{upper: true}}
	err := runYamlEdit(ctx, step)
	assert.NilError(t, err)

	got, err := os.ReadFile(out)
	assert.NilError(t, err)
	assert.Check(t, cmp.Contains(string(got), "COMPILED:{{ name }}"))
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
