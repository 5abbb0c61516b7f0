// Package pathmodel normalizes target references into absolute target ids
// and maps those ids back onto buildfile paths on disk. It is a pure
// function of (reference, referring buildfile path, workspace root) — no
// I/O, no caching, mirroring the teacher's own preference for small,
// side-effect-free path helpers (dalec/graph.go's getBuildDeps/getRuntimeDeps).
package pathmodel

import (
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/dalecbuild/emake/internal/errs"
)

// BuildfileName is the filename every buildfile — root or nested — is
// expected to carry, following original_source's commands/init.rs and
// emake/loader.rs.
const BuildfileName = "Emakefile"

// targetsSep is the literal separator between a directory and a target name
// in an absolute target id: "<dir>/targets:<name>".
const targetsSep = "/targets:"

// Normalize resolves a symbolic target reference into an absolute target id
// of the form "<dir>/targets:<name>", rooted at workspaceRoot.
//
// referringDir is the directory of the buildfile the reference was written
// in (not the buildfile path itself) — callers pass filepath.Dir(referringPath).
func Normalize(ref, referringDir, workspaceRoot string) (string, error) {
	if ref == "" {
		return "", &errs.ResolverError{Ref: ref, Reason: "empty reference"}
	}

	workspaceRoot = cleanAbs(workspaceRoot)

	var dir, name string

	switch {
	case strings.HasPrefix(ref, "//"):
		// Workspace-absolute: //a/b:name
		rest := strings.TrimPrefix(ref, "//")
		d, n, err := splitTargetName(rest)
		if err != nil {
			return "", errors.Wrapf(err, "normalizing %q", ref)
		}
		dir = path.Join(workspaceRoot, d)
		name = n

	case strings.HasPrefix(ref, ":"):
		// Same-file shorthand: ":name", anchored at referring buildfile dir.
		name = strings.TrimPrefix(ref, ":")
		dir = cleanAbs(referringDir)

	case strings.Contains(ref, ":"):
		// Buildfile-relative: sub/dir:name
		d, n, err := splitTargetName(ref)
		if err != nil {
			return "", errors.Wrapf(err, "normalizing %q", ref)
		}
		dir = path.Join(cleanAbs(referringDir), d)
		name = n

	default:
		// Bare name: anchored at the current buildfile, no path component.
		name = ref
		dir = cleanAbs(referringDir)
	}

	if name == "" {
		return "", &errs.ResolverError{Ref: ref, Reason: "missing target name"}
	}

	dir = path.Clean(dir)
	if !withinWorkspace(dir, workspaceRoot) {
		return "", &errs.ResolverError{Ref: ref, Reason: "reference escapes workspace root"}
	}

	return dir + targetsSep + name, nil
}

// splitTargetName splits "sub/dir:name" into ("sub/dir", "name"). A string
// with no colon is rejected here; callers special-case the ":name" and bare
// "name" forms before calling splitTargetName.
func splitTargetName(s string) (dir, name string, err error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return "", "", errors.Errorf("missing ':' separator in %q", s)
	}
	return s[:i], s[i+1:], nil
}

func cleanAbs(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean(p)
}

// withinWorkspace reports whether dir is workspaceRoot or a descendant of
// it. Both arguments must already be cleaned absolute paths.
func withinWorkspace(dir, workspaceRoot string) bool {
	if dir == workspaceRoot {
		return true
	}
	return strings.HasPrefix(dir, workspaceRoot+"/")
}

// ToBuildfilePath maps an absolute target id back to the on-disk path of
// the buildfile declaring it, by stripping the trailing "targets:<name>"
// and appending BuildfileName.
func ToBuildfilePath(targetID string) (string, error) {
	i := strings.LastIndex(targetID, targetsSep)
	if i < 0 {
		return "", errors.Errorf("malformed target id %q: missing %q", targetID, targetsSep)
	}
	dir := targetID[:i]
	return path.Join(dir, BuildfileName), nil
}

// TargetName returns the bare target name component of an absolute target
// id, e.g. "name" from "//a/b/targets:name".
func TargetName(targetID string) (string, error) {
	i := strings.LastIndex(targetID, targetsSep)
	if i < 0 {
		return "", errors.Errorf("malformed target id %q", targetID)
	}
	return targetID[i+len(targetsSep):], nil
}

// ToFootprintPath mangles an absolute target id (or a file's absolute path)
// into the on-disk segment used under .emake/footprints and
// .emake/cache/<path>, replacing "targets:" with "_targets_/" and
// removing a leading "//", per the workspace layout contract.
func ToFootprintPath(id string) string {
	id = strings.ReplaceAll(id, "targets:", "_targets_/")
	return strings.TrimPrefix(id, "//")
}
