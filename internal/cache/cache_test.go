package cache

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/dalecbuild/emake/internal/workspace"
)

func TestFootprintDeterministic(t *testing.T) {
	a, err := Footprint(map[string]string{"cmd": "echo hi"})
	assert.NilError(t, err)
	b, err := Footprint(map[string]string{"cmd": "echo hi"})
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(a, b))

	c, err := Footprint(map[string]string{"cmd": "echo bye"})
	assert.NilError(t, err)
	assert.Check(t, a != c)
}

func TestShouldRunOnFirstSeenFootprint(t *testing.T) {
	dir := t.TempDir()
	s := New(workspace.New(dir))

	run, err := s.ShouldRun("act1", "fp1", nil, nil, "", false)
	assert.NilError(t, err)
	assert.Check(t, run)

	assert.NilError(t, s.RecordSuccess("act1", "fp1", nil, nil, "", false))

	run, err = s.ShouldRun("act1", "fp1", nil, nil, "", false)
	assert.NilError(t, err)
	assert.Check(t, !run)

	run, err = s.ShouldRun("act1", "fp2", nil, nil, "", false)
	assert.NilError(t, err)
	assert.Check(t, run)
}

func TestShouldRunOnFileMtimeChange(t *testing.T) {
	dir := t.TempDir()
	s := New(workspace.New(dir))

	f := filepath.Join(dir, "in.txt")
	assert.NilError(t, os.WriteFile(f, []byte("v1"), 0o644))

	run, err := s.ShouldRun("act1", "fp1", []string{f}, nil, "", false)
	assert.NilError(t, err)
	assert.Check(t, run)
	assert.NilError(t, s.RecordSuccess("act1", "fp1", []string{f}, nil, "", false))

	run, err = s.ShouldRun("act1", "fp1", []string{f}, nil, "", false)
	assert.NilError(t, err)
	assert.Check(t, !run)

	// Touch the file with a later mtime; the cached fingerprint must miss.
	info, err := os.Stat(f)
	assert.NilError(t, err)
	later := info.ModTime().Add(time.Second)
	assert.NilError(t, os.Chtimes(f, later, later))

	run, err = s.ShouldRun("act1", "fp1", []string{f}, nil, "", false)
	assert.NilError(t, err)
	assert.Check(t, run)
}

func TestShouldRunFatalOnMissingInput(t *testing.T) {
	dir := t.TempDir()
	s := New(workspace.New(dir))
	_, err := s.ShouldRun("act1", "fp1", []string{filepath.Join(dir, "nope.txt")}, nil, "", false)
	assert.Check(t, err != nil)
}

func TestShouldRunChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	s := New(workspace.New(dir))

	assert.NilError(t, s.RecordSuccess("act1", "fp1", nil, nil, "sum1", true))

	run, err := s.ShouldRun("act1", "fp1", nil, nil, "sum1", true)
	assert.NilError(t, err)
	assert.Check(t, !run)

	run, err = s.ShouldRun("act1", "fp1", nil, nil, "sum2", true)
	assert.NilError(t, err)
	assert.Check(t, run)
}

func TestIsDownloadableInput(t *testing.T) {
	assert.Check(t, IsDownloadableInput("https://example.com/file.tar.gz"))
	assert.Check(t, !IsDownloadableInput("not-a-url"))
	assert.Check(t, !IsDownloadableInput("https://example.com/"))
	assert.Check(t, !IsDownloadableInput("ftp://example.com/file.txt"))
}

func TestResolveRemoteInputDownloadsOnce(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	s := New(workspace.New(dir))

	out1, err := s.ResolveRemoteInput(srv.URL+"/file.txt", "")
	assert.NilError(t, err)
	got, err := os.ReadFile(out1)
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(string(got), "payload"))

	out2, err := s.ResolveRemoteInput(srv.URL+"/file.txt", "")
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(out1, out2))
	assert.Check(t, cmp.Equal(hits, 1))
}

func TestResolveRemoteInputSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	s := New(workspace.New(t.TempDir()))

	_, err := s.ResolveRemoteInput(srv.URL+"/secret.txt", "tok123")
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(gotAuth, "Bearer tok123"))
}
