package template

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

type fakeVars map[string]string

func (f fakeVars) LookupVariable(_, name string) (string, bool, error) {
	v, ok := f[name]
	return v, ok, nil
}

type fakeSecrets map[string]string

func (f fakeSecrets) ResolveSecret(_, ref string) (string, error) {
	v, ok := f[ref]
	if !ok {
		return "", assertErr{ref}
	}
	return v, nil
}

type assertErr struct{ ref string }

func (e assertErr) Error() string { return "secret not found: " + e.ref }

func TestCompileBareVariable(t *testing.T) {
	c := &Compiler{Vars: fakeVars{"name": "world"}}
	got, err := c.Compile("hello {{ name }}", "/ws/Emakefile", nil)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(got, "hello world"))
}

func TestCompileRuntimeReplacement(t *testing.T) {
	c := &Compiler{Vars: fakeVars{}}
	got, err := c.Compile("{{ EMAKE_OUT_DIR }}/bin", "/ws/Emakefile", map[string]string{
		"EMAKE_OUT_DIR": "/ws/.emake/out",
	})
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(got, "/ws/.emake/out/bin"))
}

func TestCompileUnknownVariableFatal(t *testing.T) {
	c := &Compiler{Vars: fakeVars{}}
	_, err := c.Compile("{{ nope }}", "/ws/Emakefile", nil)
	assert.Check(t, err != nil)
}

func TestCompileGlobExpansion(t *testing.T) {
	dir := t.TempDir()
	assert.NilError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "src", "a.txt"), nil, 0o644))
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "src", "b.txt"), nil, 0o644))

	c := &Compiler{Vars: fakeVars{}, WorkspaceRoot: dir}
	got, err := c.Compile(`{{ glob("src/*.txt") }}`, filepath.Join(dir, "Emakefile"), nil)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(got, "["+filepath.Join(dir, "src", "a.txt")+", "+filepath.Join(dir, "src", "b.txt")+"]"))
}

func TestCompileGlobNoMatches(t *testing.T) {
	dir := t.TempDir()
	c := &Compiler{Vars: fakeVars{}, WorkspaceRoot: dir}
	got, err := c.Compile(`{{ glob("src/*.nope") }}`, filepath.Join(dir, "Emakefile"), nil)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(got, "[]"))
}

func TestCompileGetSecret(t *testing.T) {
	c := &Compiler{
		Vars:    fakeVars{},
		Secrets: fakeSecrets{"my_key": "hello"},
	}
	got, err := c.Compile(`{{ get_secret("my_key") }}`, "/ws/Emakefile", nil)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(got, "hello"))
}
