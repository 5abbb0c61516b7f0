package loader

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	assert.NilError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadAtMostOncePerPath(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "Emakefile", `
targets:
  hello:
    steps:
      - shell:
          cmd: "echo hi"
`)

	l := New()
	doc1, err := l.Load(p)
	assert.NilError(t, err)

	// Mutate the file on disk; a second Load must still return the cached
	// parse, not re-read the (now different) content.
	assert.NilError(t, os.WriteFile(p, []byte("targets: {}\n"), 0o644))

	doc2, err := l.Load(p)
	assert.NilError(t, err)
	assert.Check(t, doc1 == doc2, "expected cached document identity")
	assert.Check(t, cmp.Len(doc2.Targets, 1))
}

func TestLoadUnknownKeyFails(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "Emakefile", `
targets:
  hello:
    bogus_key: true
`)

	l := New()
	_, err := l.Load(p)
	assert.Check(t, err != nil)
}

func TestStepExactlyOneVariant(t *testing.T) {
	cases := []struct {
		title     string
		step      Step
		expectErr bool
	}{
		{title: "no variant", step: Step{}, expectErr: true},
		{
			title: "two variants",
			step: Step{
				Shell: &ShellAction{Cmd: "echo hi"},
				Copy:  &CopyAction{From: []string{"a"}, To: []string{"b"}},
			},
			expectErr: true,
		},
		{
			title: "one variant",
			step:  Step{Shell: &ShellAction{Cmd: "echo hi"}},
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.title, func(t *testing.T) {
			err := c.step.Validate()
			if c.expectErr {
				assert.Check(t, err != nil)
			} else {
				assert.NilError(t, err)
			}
		})
	}
}

func TestInFileRefBareString(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "Emakefile", `
targets:
  hello:
    steps:
      - shell:
          cmd: "echo hi"
        in_files:
          - src/a.txt
          - file: src/b.txt
            credentials: my_secret
`)

	l := New()
	doc, err := l.Load(p)
	assert.NilError(t, err)

	step := doc.Targets["hello"].Steps[0]
	assert.Check(t, cmp.Len(step.InFiles, 2))
	assert.Check(t, cmp.Equal(step.InFiles[0].File, "src/a.txt"))
	assert.Check(t, cmp.Equal(step.InFiles[1].Credentials, "my_secret"))
}
