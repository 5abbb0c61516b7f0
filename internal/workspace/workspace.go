// Package workspace names the on-disk layout of the .emake/ persisted
// state directory and the path-mangling rule used to address per-file and
// per-action entries within it, grounded on original_source/src/cache.rs's
// CACHE_DIR/WORKING_DIR/OUT_DIR/FOOTPRINTS_DIR constants.
package workspace

import "path/filepath"

const (
	cacheDirName      = ".emake/cache"
	workingDirName    = ".emake/workspace"
	outDirName        = ".emake/out"
	footprintsDirName = ".emake/footprints"
)

// Layout resolves the four workspace-local persisted-state directories
// rooted at a given workspace root.
type Layout struct {
	Root string
}

func New(root string) Layout {
	return Layout{Root: filepath.Clean(root)}
}

func (l Layout) CacheDir() string      { return filepath.Join(l.Root, cacheDirName) }
func (l Layout) WorkingDir() string    { return filepath.Join(l.Root, workingDirName) }
func (l Layout) OutDir() string        { return filepath.Join(l.Root, outDirName) }
func (l Layout) FootprintsDir() string { return filepath.Join(l.Root, footprintsDirName) }

// FingerprintFile returns the path of the per-file fingerprint cache file
// for a given absolute file path, mangled per the workspace layout contract:
// .emake/cache/<mangled-absolute-file-path>/time
func (l Layout) FingerprintFile(mangledFilePath string) string {
	return filepath.Join(l.CacheDir(), mangledFilePath, "time")
}

// ChecksumFile returns the single shared path of the declared-checksum
// subcache.
func (l Layout) ChecksumFile() string {
	return filepath.Join(l.CacheDir(), "checksum")
}

// FootprintFile returns the path of the per-action footprint file for a
// mangled action id.
func (l Layout) FootprintFile(mangledActionID string) string {
	return filepath.Join(l.FootprintsDir(), mangledActionID)
}

// Dirs lists all four persisted-state directories, in creation order.
func (l Layout) Dirs() []string {
	return []string{l.CacheDir(), l.WorkingDir(), l.OutDir(), l.FootprintsDir()}
}

// StateDir returns the single top-level .emake/ directory these four
// persisted-state directories are rooted under, the unit `emake clean`
// wipes wholesale before replaying every declared `clean` step.
func (l Layout) StateDir() string {
	return filepath.Join(l.Root, ".emake")
}
