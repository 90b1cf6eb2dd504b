// Package artifact handles assembled bundle layout and archival.
//
// A bundle is a directory named <module>.bundle directly under the
// output directory. For storage, a bundle is packed into a single
// zstd-compressed tar stream; restore unpacks the stream back into
// place.
package artifact

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// BundlePath returns the bundle directory for a module under outputDir
func BundlePath(outputDir, module string) string {
	return filepath.Join(outputDir, module+".bundle")
}

// Exists reports whether a bundle directory is present for a module
func Exists(outputDir, module string) bool {
	info, err := os.Stat(BundlePath(outputDir, module))
	return err == nil && info.IsDir()
}

// Pack writes the bundle directory as a zstd-compressed tar stream to w
func Pack(bundleDir string, w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}

	tw := tar.NewWriter(zw)

	err = filepath.Walk(bundleDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(bundleDir, path)
		if err != nil {
			return err
		}

		if rel == "." {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}

		hdr.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		tw.Close()
		zw.Close()
		return fmt.Errorf("failed to pack bundle: %w", err)
	}

	if err := tw.Close(); err != nil {
		zw.Close()
		return fmt.Errorf("failed to finish archive: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish compression: %w", err)
	}

	return nil
}

// Unpack extracts a zstd-compressed tar stream into the bundle directory
func Unpack(r io.Reader, bundleDir string) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}

	tr := tar.NewReader(zr)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		dst, err := safeJoin(bundleDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dst, hdr.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}

			f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, hdr.FileInfo().Mode().Perm())
			if err != nil {
				return fmt.Errorf("failed to create file: %w", err)
			}

			_, err = io.Copy(f, tr)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
			}
		default:
			// Symlinks and specials never appear in bundles
			return fmt.Errorf("unexpected entry type %d for %s", hdr.Typeflag, hdr.Name)
		}
	}
}

// safeJoin joins name under dir, rejecting paths that escape it
func safeJoin(dir, name string) (string, error) {
	dst := filepath.Join(dir, filepath.FromSlash(name))
	if dst != dir && !strings.HasPrefix(dst, dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes bundle directory", name)
	}

	return dst, nil
}
