// Package cache implements the incrementality layer: footprint hashing of
// an action's serialized payload, per-file modification-time fingerprints,
// and a declared-checksum subcache, persisted under the workspace's
// .emake/footprints and .emake/cache trees. Grounded on original_source/src/cache.rs's
// write_file_cache/has_file_changed/get_cache_action_checksum line-based
// cache files, translated from tokio::fs await points into ordinary
// synchronous os calls guarded by an exclusive file lock per cache file.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"

	"github.com/dalecbuild/emake/internal/errs"
	"github.com/dalecbuild/emake/internal/pathmodel"
	"github.com/dalecbuild/emake/internal/workspace"
)

// Store persists footprint, fingerprint, and checksum cache entries under
// one workspace.Layout.
type Store struct {
	Layout workspace.Layout
}

func New(layout workspace.Layout) *Store {
	return &Store{Layout: layout}
}

// Footprint returns the BLAKE3-256 hex digest of payload's canonical JSON
// encoding — encoding/json already renders map keys in sorted order, making
// this deterministic across runs for a fixed input (spec §3's footprint
// definition, spec §4.6 mandating BLAKE3 explicitly).
func Footprint(payload interface{}) (string, error) {
	dt, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "encode action payload")
	}
	sum := blake3.Sum256(dt)
	return hex.EncodeToString(sum[:]), nil
}

// ShouldRun decides whether an action must run, per spec §4.6: a changed
// footprint or declared checksum forces a run outright; otherwise every
// resolved input and output file's recorded fingerprint must still match.
// A missing input file is a fatal error; a missing output file counts as
// "changed" rather than failing.
func (s *Store) ShouldRun(actionID, footprint string, inputs, outputs []string, checksum string, hasChecksum bool) (bool, error) {
	changed, err := s.footprintChanged(actionID, footprint)
	if err != nil {
		return true, err
	}
	if changed {
		return true, nil
	}

	if hasChecksum {
		changed, err := s.checksumChanged(actionID, checksum)
		if err != nil {
			return true, err
		}
		if changed {
			return true, nil
		}
	}

	for _, p := range inputs {
		unchanged, err := s.fileUnchanged(actionID, p, true)
		if err != nil {
			return true, err
		}
		if !unchanged {
			return true, nil
		}
	}
	for _, p := range outputs {
		unchanged, err := s.fileUnchanged(actionID, p, false)
		if err != nil {
			return true, err
		}
		if !unchanged {
			return true, nil
		}
	}
	return false, nil
}

// RecordSuccess updates every cache entry this action's successful run
// affects: the footprint, the checksum (if declared), and a fresh
// fingerprint for each input/output file that currently exists.
func (s *Store) RecordSuccess(actionID, footprint string, inputs, outputs []string, checksum string, hasChecksum bool) error {
	if err := s.writeFootprint(actionID, footprint); err != nil {
		return err
	}
	if hasChecksum {
		if err := s.writeChecksum(actionID, checksum); err != nil {
			return err
		}
	}
	for _, p := range append(append([]string(nil), inputs...), outputs...) {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := s.writeFingerprint(actionID, p); err != nil {
			return err
		}
	}
	return nil
}

// IsDownloadableInput reports whether ref looks like a fetchable http(s)
// URL pointing at a file (its last path segment has an extension), per
// original_source/src/graph/runner.rs's is_downloadable_file.
func IsDownloadableInput(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	last := path.Base(u.Path)
	return strings.Contains(last, ".")
}

// ResolveRemoteInput fetches an http(s) input file once into the
// workspace's cache directory and returns the local path the action should
// use in place of the URL, downloading only when no cached copy already
// exists — mirrors download_file/is_file_changed from
// original_source/src/graph/runner.rs, using net/http since no pack
// repository reaches for a third-party HTTP client for plain GET fetches.
// bearer, if non-empty, is sent as an Authorization: Bearer header — the
// credential an input file reference's {file, credentials} form (spec.md
// §3) resolves to via the secret registry before the fetch runs.
func (s *Store) ResolveRemoteInput(ref, bearer string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", errors.Wrapf(err, "parse url %s", ref)
	}
	filename := path.Base(u.Path)
	if filename == "" || filename == "." || filename == "/" {
		return "", errors.Errorf("cannot derive filename from url %s", ref)
	}
	out := filepath.Join(s.Layout.CacheDir(), filename)

	if _, err := os.Stat(out); err == nil {
		return out, nil
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", errors.Wrapf(err, "create dir for %s", out)
	}

	req, err := http.NewRequest(http.MethodGet, ref, nil)
	if err != nil {
		return "", errors.Wrapf(err, "build request for %s", ref)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "download %s", ref)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Errorf("download %s: http %d", ref, resp.StatusCode)
	}

	f, err := os.Create(out)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", out)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", errors.Wrapf(err, "write %s", out)
	}
	return out, nil
}

func (s *Store) footprintChanged(actionID, footprint string) (bool, error) {
	path := s.Layout.FootprintFile(mangle(actionID))
	stored, ok, err := readOneLine(path)
	if err != nil {
		return true, err
	}
	return !ok || stored != footprint, nil
}

func (s *Store) writeFootprint(actionID, footprint string) error {
	path := s.Layout.FootprintFile(mangle(actionID))
	return writeOneLine(path, footprint)
}

func (s *Store) checksumChanged(actionID, checksum string) (bool, error) {
	stored, ok, err := readKeyedLine(s.Layout.ChecksumFile(), actionID)
	if err != nil {
		return true, err
	}
	return !ok || stored != checksum, nil
}

func (s *Store) writeChecksum(actionID, checksum string) error {
	return upsertKeyedLine(s.Layout.ChecksumFile(), actionID, checksum)
}

// fileUnchanged reports whether path's on-disk modification time still
// matches the fingerprint recorded for (actionID, path).
func (s *Store) fileUnchanged(actionID, path string, isInput bool) (bool, error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if isInput {
			return false, errors.Wrapf(statErr, "missing input file %s", path)
		}
		return false, nil
	}

	want := info.ModTime().Format(time.RFC3339Nano)
	cacheFile := s.fingerprintFile(path)
	got, ok, err := readKeyedLine(cacheFile, actionID)
	if err != nil {
		// A fingerprint-cache read failure is non-fatal: log it and treat
		// the file as changed, forcing a rerun rather than aborting build.
		logrus.WithFields(logrus.Fields{
			"action_id": actionID,
			"file":      path,
		}).WithError(&errs.CacheError{ActionID: actionID, File: path, Err: err}).Warn("cache read failed, treating as changed")
		return false, nil
	}
	return ok && got == want, nil
}

func (s *Store) writeFingerprint(actionID, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	mtime := info.ModTime().Format(time.RFC3339Nano)
	return upsertKeyedLine(s.fingerprintFile(path), actionID, mtime)
}

func (s *Store) fingerprintFile(absPath string) string {
	return s.Layout.FingerprintFile(mangle(absPath))
}

// mangle reuses the target-id mangling rule for file paths too, since both
// ids and absolute paths are addressed under the same .emake subtrees.
func mangle(id string) string {
	return pathmodel.ToFootprintPath(id)
}

// readOneLine reads a single-value cache file (the per-action footprint
// file), returning its trimmed content.
func readOneLine(path string) (string, bool, error) {
	dt, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "read %s", path)
	}
	return strings.TrimSpace(string(dt)), true, nil
}

func writeOneLine(path, value string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create dir for %s", path)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return errors.Wrapf(err, "lock %s", path)
	}
	defer lock.Unlock()

	return os.WriteFile(path, []byte(value), 0o644)
}

// readKeyedLine reads a "<key> <value>" line-table cache file (fingerprint
// or checksum subcache) and returns the value for key, if present.
func readKeyedLine(path, key string) (string, bool, error) {
	dt, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "read %s", path)
	}
	for _, line := range strings.Split(string(dt), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) == 2 && parts[0] == key {
			return parts[1], true, nil
		}
	}
	return "", false, nil
}

// upsertKeyedLine updates or appends the "<key> <value>" line for key,
// preserving every other line's position — "never duplicated, never
// reordered" per spec §4.6 — under an exclusive lock so concurrent writers
// serialize on this cache file.
func upsertKeyedLine(path, key, value string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create dir for %s", path)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return errors.Wrapf(err, "lock %s", path)
	}
	defer lock.Unlock()

	var lines []string
	if dt, err := os.ReadFile(path); err == nil {
		lines = strings.Split(string(dt), "\n")
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "read %s", path)
	}

	newLine := key + " " + value
	found := false
	for i, line := range lines {
		parts := strings.SplitN(line, " ", 2)
		if len(parts) >= 1 && parts[0] == key {
			lines[i] = newLine
			found = true
			break
		}
	}
	if !found {
		if len(lines) == 1 && lines[0] == "" {
			lines[0] = newLine
		} else {
			lines = append(lines, newLine)
		}
	}

	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}
