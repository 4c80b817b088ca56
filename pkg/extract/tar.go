package extract

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/modelget/rget/pkg/logging"
)

// link is created after all regular files so that hard link targets exist.
type link struct {
	typeflag byte
	// linkname is the target as written in the archive.
	linkname string
	// path is where the link itself goes.
	path string
}

func extractTar(r io.Reader, destDir string, overwrite bool) error {
	logger := logging.GetLogger()
	tr := tar.NewReader(r)
	var links []link

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading tar entry: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}
		mode := header.FileInfo().Mode().Perm()

		switch header.Typeflag {
		case tar.TypeDir:
			logger.Debug().Str("target", target).Str("perms", fmt.Sprintf("%o", mode)).Msg("Tar: Directory")
			if err := os.MkdirAll(target, mode|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			logger.Debug().Str("target", target).Str("perms", fmt.Sprintf("%o", mode)).Msg("Tar: File")
			if err := writeFile(target, tr, mode, overwrite); err != nil {
				return err
			}
		case tar.TypeSymlink, tar.TypeLink:
			logger.Debug().
				Str("link_type", string(header.Typeflag)).
				Str("linkname", header.Linkname).
				Str("path", target).
				Msg("Tar: (Defer) Link")
			links = append(links, link{typeflag: header.Typeflag, linkname: header.Linkname, path: target})
		case tar.TypeXGlobalHeader:
			continue
		default:
			return fmt.Errorf("unsupported file type for %s, typeflag %q", header.Name, header.Typeflag)
		}
	}

	return createLinks(links, destDir, overwrite)
}

func createLinks(links []link, destDir string, overwrite bool) error {
	logger := logging.GetLogger()
	for _, l := range links {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			return err
		}
		if overwrite {
			if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("error removing existing file %s: %w", l.path, err)
			}
		}

		switch l.typeflag {
		case tar.TypeLink:
			oldPath, err := safeJoin(destDir, l.linkname)
			if err != nil {
				return err
			}
			logger.Debug().Str("old_path", oldPath).Str("new_path", l.path).Msg("Tar: creating hard link")
			if err := os.Link(oldPath, l.path); err != nil {
				return fmt.Errorf("error creating hard link from %s to %s: %w", oldPath, l.path, err)
			}
		case tar.TypeSymlink:
			if err := checkSymlink(destDir, l); err != nil {
				return err
			}
			logger.Debug().Str("old_path", l.linkname).Str("new_path", l.path).Msg("Tar: creating symlink")
			if err := os.Symlink(l.linkname, l.path); err != nil {
				return fmt.Errorf("error creating symlink from %s to %s: %w", l.linkname, l.path, err)
			}
		default:
			return fmt.Errorf("unsupported link type %q", l.typeflag)
		}
	}
	return nil
}

// checkSymlink rejects symlinks that resolve outside destDir.
func checkSymlink(destDir string, l link) error {
	if filepath.IsAbs(l.linkname) {
		return fmt.Errorf("%w: symlink `%s` -> `%s`", ErrZipSlip, l.path, l.linkname)
	}
	destAbs, err := filepath.Abs(destDir)
	if err != nil {
		return err
	}
	resolved := filepath.Join(filepath.Dir(l.path), l.linkname)
	if !within(destAbs, resolved) {
		return fmt.Errorf("%w: symlink `%s` -> `%s`", ErrZipSlip, l.path, l.linkname)
	}
	return nil
}
