package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"os"

	"github.com/modelget/rget/pkg/logging"
)

func extractZip(r io.ReaderAt, size int64, destDir string, overwrite bool) error {
	logger := logging.GetLogger()
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("error creating zip reader: %w", err)
	}

	for _, file := range zr.File {
		target, err := safeJoin(destDir, file.Name)
		if err != nil {
			return err
		}
		mode := file.Mode()
		switch {
		case mode.IsDir():
			logger.Debug().Str("target", target).Msg("Zip: Directory")
			if err := os.MkdirAll(target, mode.Perm()|0o700); err != nil {
				return fmt.Errorf("error creating directory: %w", err)
			}
		case mode.IsRegular():
			logger.Debug().Str("target", target).Msg("Zip: File")
			if err := extractZipFile(file, target, overwrite); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported file type (not dir or regular): %s (%s)", file.Name, mode.Type())
		}
	}
	return nil
}

func extractZipFile(file *zip.File, target string, overwrite bool) error {
	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("error opening %s in archive: %w", file.Name, err)
	}
	defer rc.Close()
	return writeFile(target, rc, file.Mode().Perm(), overwrite)
}
