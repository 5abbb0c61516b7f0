package action

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// runMove moves every input into directory outFiles[0], implemented as
// copy-then-remove-source rather than os.Rename, since a cross-filesystem
// rename is unreliable — the same rationale actions/mv.rs gives for using
// fs_extra's copy_items instead of a plain rename.
func runMove(ctx Context, inFiles, outFiles []string) error {
	if len(outFiles) != 1 {
		return errors.New("move requires exactly one destination directory")
	}
	dest := outFiles[0]
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return errors.Wrapf(err, "create destination %s", dest)
	}

	for _, from := range inFiles {
		to := filepath.Join(dest, filepath.Base(from))
		if err := copyFile(from, to); err != nil {
			return errors.Wrapf(err, "move %s -> %s", from, to)
		}
		if err := os.RemoveAll(from); err != nil {
			return errors.Wrapf(err, "remove source %s after move", from)
		}
		if ctx.Log != nil {
			ctx.Log.Write("moved " + from + " -> " + to)
		}
	}
	return nil
}
