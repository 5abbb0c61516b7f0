package action

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/dalecbuild/emake/internal/loader"
)

// runArchive writes every resolved input into an archive at a.To, the
// format inferred from its extension — the inverse of extract.go's reading
// side, supporting the same zip/tar.gz formats plus tar.zst (no pack repo
// carries an xz *writer*, so the compressed-write side of this action uses
// zstd instead of xz where extract.go's read side can still honor xz).
func runArchive(ctx Context, a *loader.ArchiveAction, inFiles []string) error {
	if err := os.MkdirAll(filepath.Dir(a.To), 0o755); err != nil {
		return errors.Wrapf(err, "create parent of %s", a.To)
	}

	switch {
	case strings.HasSuffix(a.To, ".zip"):
		return archiveZip(a.To, inFiles)
	case strings.HasSuffix(a.To, ".tar.gz"), strings.HasSuffix(a.To, ".tgz"):
		return archiveTarGz(a.To, inFiles)
	case strings.HasSuffix(a.To, ".tar.zst"):
		return archiveTarZst(a.To, inFiles)
	case strings.HasSuffix(a.To, ".tar"):
		f, err := os.Create(a.To)
		if err != nil {
			return err
		}
		defer f.Close()
		tw := tar.NewWriter(f)
		defer tw.Close()
		return addFilesToTar(tw, inFiles)
	default:
		return errors.Errorf("unrecognized archive extension for %q", a.To)
	}
}

func archiveZip(to string, inFiles []string) error {
	f, err := os.Create(to)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	for _, p := range inFiles {
		if err := addFileToZip(zw, p); err != nil {
			return errors.Wrapf(err, "add %s to zip", p)
		}
	}
	return nil
}

func addFileToZip(zw *zip.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
			if err != nil || fi.IsDir() {
				return err
			}
			rel, _ := filepath.Rel(filepath.Dir(path), p)
			return writeZipEntry(zw, p, rel, fi)
		})
	}
	return writeZipEntry(zw, path, filepath.Base(path), info)
}

func writeZipEntry(zw *zip.Writer, srcPath, name string, info os.FileInfo) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return err
}

func archiveTarGz(to string, inFiles []string) error {
	f, err := os.Create(to)
	if err != nil {
		return err
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	defer gw.Close()

	tw := tar.NewWriter(gw)
	defer tw.Close()

	return addFilesToTar(tw, inFiles)
}

func archiveTarZst(to string, inFiles []string) error {
	f, err := os.Create(to)
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return errors.Wrap(err, "open zstd writer")
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	return addFilesToTar(tw, inFiles)
}

func addFilesToTar(tw *tar.Writer, inFiles []string) error {
	for _, p := range inFiles {
		if err := addFileToTar(tw, p, filepath.Base(p)); err != nil {
			return errors.Wrapf(err, "add %s to archive", p)
		}
	}
	return nil
}

func addFileToTar(tw *tar.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			rel, _ := filepath.Rel(filepath.Dir(path), p)
			return writeTarEntry(tw, p, rel, fi)
		})
	}
	return writeTarEntry(tw, path, name, info)
}

func writeTarEntry(tw *tar.Writer, srcPath, name string, info os.FileInfo) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(tw, src)
	return err
}
