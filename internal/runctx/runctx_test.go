package runctx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestBuildExecutesTargetStep(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "out.txt")

	buildfile := `
targets:
  a:
    steps:
      - shell:
          cmd: "touch ` + marker + `"
`
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "Emakefile"), []byte(buildfile), 0o644))

	rc := New(dir)
	_, err := rc.Build(context.Background(), ":a", dir)
	assert.NilError(t, err)

	_, statErr := os.Stat(marker)
	assert.NilError(t, statErr)
}

func TestBuildReturnsGraphOnRunFailure(t *testing.T) {
	dir := t.TempDir()
	buildfile := `
targets:
  a:
    steps:
      - shell:
          cmd: "exit 1"
`
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "Emakefile"), []byte(buildfile), 0o644))

	rc := New(dir)
	g, err := rc.Build(context.Background(), ":a", dir)
	assert.Check(t, err != nil)
	assert.Check(t, g != nil)
}

func TestNewRegistersSecretPlugins(t *testing.T) {
	rc := New(t.TempDir())
	assert.Check(t, rc.Secrets != nil)
	assert.Check(t, rc.Resolver != nil)
}

func TestInitRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	rc := New(dir)
	assert.NilError(t, rc.Init())

	path := filepath.Join(dir, "Emakefile")
	_, err := os.Stat(path)
	assert.NilError(t, err)

	assert.Check(t, rc.Init() != nil)
}

func TestCleanRunsStepsAcrossNestedBuildfiles(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "cleaned.txt")

	nested := filepath.Join(dir, "sub")
	assert.NilError(t, os.Mkdir(nested, 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(nested, "Emakefile"), []byte(`
targets:
  a:
    steps:
      - shell:
          cmd: "echo built"
        clean: "touch `+marker+`"
`), 0o644))

	rc := New(dir)
	assert.NilError(t, rc.Clean())

	_, err := os.Stat(marker)
	assert.NilError(t, err)
}
