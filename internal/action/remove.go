package action

import (
	"os"

	"github.com/pkg/errors"
)

// runRemove deletes every declared path, recursively. A path that does not
// exist is not an error — removing an already-absent file is a no-op,
// matching actions/remove.rs's use of fs_extra::remove_items with its
// "tolerate missing" semantics.
func runRemove(ctx Context, paths []string) error {
	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			return errors.Wrapf(err, "remove %s", p)
		}
		if ctx.Log != nil {
			ctx.Log.Write("removed " + p)
		}
	}
	return nil
}
