package action

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// runCopy copies each resolved input to its matching output, or — when a
// single destination directory is declared — every input into that
// directory, mirroring actions/copy.rs's "to[0] is a directory when there
// are more sources than destinations" behavior.
func runCopy(ctx Context, inFiles, outFiles []string) error {
	if len(outFiles) == 0 {
		return errors.New("copy requires at least one destination")
	}

	intoDir := len(outFiles) == 1 && len(inFiles) != 1
	for i, from := range inFiles {
		var to string
		if intoDir {
			to = filepath.Join(outFiles[0], filepath.Base(from))
		} else if i < len(outFiles) {
			to = outFiles[i]
		} else {
			return errors.Errorf("copy has no destination for input %q", from)
		}
		if err := copyFile(from, to); err != nil {
			return errors.Wrapf(err, "copy %s -> %s", from, to)
		}
		if ctx.Log != nil {
			ctx.Log.Write("copied " + from + " -> " + to)
		}
	}
	return nil
}

func copyFile(from, to string) error {
	info, err := os.Stat(from)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyDir(from, to, info.Mode())
	}

	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

func copyDir(from, to string, mode os.FileMode) error {
	if err := os.MkdirAll(to, mode); err != nil {
		return err
	}
	entries, err := os.ReadDir(from)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := copyFile(filepath.Join(from, e.Name()), filepath.Join(to, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
