package action

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"

	"github.com/dalecbuild/emake/internal/loader"
)

// runExtract extracts a zip, tar.gz, or tar.xz archive (format inferred
// from From's extension, the same dispatch-on-extension actions/extract.rs
// uses) into directory To.
func runExtract(ctx Context, a *loader.ExtractAction, inFiles []string) error {
	from := a.From
	if len(inFiles) > 0 {
		from = inFiles[0]
	}
	if err := os.MkdirAll(a.To, 0o755); err != nil {
		return errors.Wrapf(err, "create destination %s", a.To)
	}

	switch {
	case strings.HasSuffix(from, ".zip"):
		return extractZip(from, a.To)
	case strings.HasSuffix(from, ".tar.gz"), strings.HasSuffix(from, ".tgz"):
		return extractTarGz(from, a.To)
	case strings.HasSuffix(from, ".tar.xz"):
		return extractTarXz(from, a.To)
	case strings.HasSuffix(from, ".tar"):
		f, err := os.Open(from)
		if err != nil {
			return err
		}
		defer f.Close()
		return extractTarReader(tar.NewReader(f), a.To)
	default:
		return errors.Errorf("unrecognized archive extension for %q", from)
	}
}

func extractZip(from, to string) error {
	r, err := zip.OpenReader(from)
	if err != nil {
		return errors.Wrap(err, "open zip")
	}
	defer r.Close()

	for _, f := range r.File {
		outPath := filepath.Join(to, f.Name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(outPath, f.Mode()); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTarGz(from, to string) error {
	f, err := os.Open(from)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "open gzip stream")
	}
	defer gz.Close()

	return extractTarReader(tar.NewReader(gz), to)
}

func extractTarXz(from, to string) error {
	f, err := os.Open(from)
	if err != nil {
		return err
	}
	defer f.Close()

	xzr, err := xz.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "open xz stream")
	}

	return extractTarReader(tar.NewReader(xzr), to)
}

func extractTarReader(tr *tar.Reader, to string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read tar entry")
		}

		outPath := filepath.Join(to, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(outPath, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}
