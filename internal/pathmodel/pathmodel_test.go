package pathmodel

import (
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestNormalize(t *testing.T) {
	const root = "/ws"

	cases := []struct {
		title        string
		ref          string
		referringDir string
		want         string
		expectErr    bool
	}{
		{
			title:        "workspace absolute",
			ref:          "//a/b:name",
			referringDir: "/ws/x",
			want:         "/ws/a/b/targets:name",
		},
		{
			title:        "buildfile relative",
			ref:          "sub/dir:name",
			referringDir: "/ws/a",
			want:         "/ws/a/sub/dir/targets:name",
		},
		{
			title:        "same file shorthand",
			ref:          ":name",
			referringDir: "/ws/a/b",
			want:         "/ws/a/b/targets:name",
		},
		{
			title:        "bare name",
			ref:          "name",
			referringDir: "/ws/a/b",
			want:         "/ws/a/b/targets:name",
		},
		{
			title:        "escapes workspace root",
			ref:          "//../outside:name",
			referringDir: "/ws/a",
			expectErr:    true,
		},
		{
			title:        "empty reference",
			ref:          "",
			referringDir: "/ws/a",
			expectErr:    true,
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.title, func(t *testing.T) {
			got, err := Normalize(c.ref, c.referringDir, root)
			if c.expectErr {
				assert.Check(t, err != nil)
				return
			}
			assert.NilError(t, err)
			assert.Check(t, cmp.Equal(got, c.want))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	// normalize(r, p) = normalize(normalize(r, p), anywhere) — re-normalizing
	// an already-absolute id from any referring directory must return the
	// same id, since an absolute id always starts with "//" relative to the
	// workspace root once re-rooted.
	const root = "/ws"

	got, err := Normalize("sub:name", "/ws/a/b", root)
	assert.NilError(t, err)

	abs := "//" + got[len(root)+1:]
	abs = abs[:len(abs)-len("/targets:name")] + ":name"

	got2, err := Normalize(abs, "/ws/anywhere/else", root)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(got, got2))
}

func TestToBuildfilePath(t *testing.T) {
	got, err := ToBuildfilePath("/ws/a/b/targets:name")
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(got, "/ws/a/b/Emakefile"))
}

func TestToFootprintPath(t *testing.T) {
	got := ToFootprintPath("//ws/a/targets:name")
	assert.Check(t, cmp.Equal(got, "ws/a/_targets_/name"))
}
