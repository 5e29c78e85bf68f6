package prebuilt

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrExtract            = errors.New("extraction failed")
	ErrUnsafePath         = errors.New("archive entry escapes extraction directory")
	ErrUnsupportedArchive = errors.New("unsupported archive format")
)

// extract unpacks the archive at src into dir. The format is chosen from
// name's extension.
func extract(src, name, dir string) error {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return extractZip(src, dir)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return extractTarGz(src, dir)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedArchive, name)
	}
}

// safeJoin resolves an archive entry name under dir, rejecting names that
// would land outside it.
func safeJoin(dir, name string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve dir: %w", err)
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	for part := range strings.SplitSeq(filepath.ToSlash(name), "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
		}
	}
	target := filepath.Join(absDir, filepath.Clean("/"+name))
	if !strings.HasPrefix(target, absDir+string(filepath.Separator)) && target != absDir {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return target, nil
}

func extractZip(src, dir string) error {
	zr, err := zip.OpenReader(src)
	if errors.Is(err, zip.ErrInsecurePath) {
		zr.Close()
		return fmt.Errorf("%w: %w", ErrUnsafePath, err)
	}
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target, err := safeJoin(dir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
			continue
		}
		if f.Mode()&os.ModeSymlink != 0 {
			// Framework bundles carry relative symlinks; keep them inside dir.
			if err := extractZipSymlink(f, dir, target); err != nil {
				return err
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}
		err = writeFile(target, rc, f.Mode().Perm())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractZipSymlink(f *zip.File, dir, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	link, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read link %s: %w", f.Name, err)
	}
	return writeSymlink(dir, f.Name, string(link), target)
}

// writeSymlink creates target as a symlink to dest. dest must be relative and
// resolve, from the entry's directory, to a path inside dir.
func writeSymlink(dir, name, dest, target string) error {
	if filepath.IsAbs(dest) {
		return fmt.Errorf("%w: link %q -> %q", ErrUnsafePath, name, dest)
	}
	resolved := filepath.Join(filepath.Dir(name), dest)
	if _, err := safeJoin(dir, filepath.ToSlash(resolved)); err != nil {
		return fmt.Errorf("%w: link %q -> %q", ErrUnsafePath, name, dest)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	os.Remove(target)
	if err := os.Symlink(dest, target); err != nil {
		return fmt.Errorf("create link %s: %w", target, err)
	}
	return nil
}

// writeHardlink links target to an entry already extracted under dir.
// Hard link names in tar archives are relative to the archive root.
func writeHardlink(dir, name, linkname, target string) error {
	src, err := safeJoin(dir, linkname)
	if err != nil {
		return fmt.Errorf("%w: link %q -> %q", ErrUnsafePath, name, linkname)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	os.Remove(target)
	if err := os.Link(src, target); err != nil {
		return fmt.Errorf("create link %s: %w", target, err)
	}
	return nil
}

func extractTarGz(src, dir string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("%w: %q", ErrUnsafePath, hdr.Name)
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		target, err := safeJoin(dir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := writeSymlink(dir, hdr.Name, hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			if err := writeHardlink(dir, hdr.Name, hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
			return fmt.Errorf("%w: tar entry %q has type %q", ErrUnsupportedArchive, hdr.Name, hdr.Typeflag)
		}
	}
	return nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	return out.Close()
}
