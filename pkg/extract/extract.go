package extract

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelget/rget/pkg/logging"
)

var (
	ErrZipSlip           = errors.New("archive contains a path outside of the target directory")
	ErrEmptyName         = errors.New("archive contains an entry with an empty name")
	ErrUnsupportedFormat = errors.New("unsupported archive format")
)

// File unpacks the archive at path into destDir, creating destDir if needed.
// Tar archives may be uncompressed or compressed with gzip, bzip2, xz or lz4.
// Zip archives are detected by their local file header. A compressed file that
// does not hold a tar archive is decompressed into destDir under its own name
// minus the compression extension.
//
// Existing files are only replaced when overwrite is set.
func File(path, destDir string, overwrite bool) error {
	logger := logging.GetLogger()
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening archive: %w", err)
	}
	defer f.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("error creating destination directory: %w", err)
	}

	br := bufio.NewReaderSize(f, sniffSize)
	header, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error reading archive header: %w", err)
	}

	logger.Debug().Str("archive", path).Str("dest", destDir).Str("status", "starting").Msg("Extract")
	if bytes.HasPrefix(header, zipMagic) {
		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("error inspecting archive: %w", err)
		}
		err = extractZip(f, info.Size(), destDir, overwrite)
	} else {
		err = extractStream(br, header, filepath.Base(path), destDir, overwrite)
	}
	if err != nil {
		return err
	}
	logger.Debug().
		Str("archive", path).
		Float64("elapsed_time", time.Since(start).Seconds()).
		Str("status", "complete").
		Msg("Extract")
	return nil
}

func extractStream(r io.Reader, header []byte, name, destDir string, overwrite bool) error {
	d := detectCompression(header)
	if d == nil {
		if !isTar(header) {
			return fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
		}
		return extractTar(r, destDir, overwrite)
	}

	decompressed, err := d.decompress(r)
	if err != nil {
		return fmt.Errorf("error reading %s stream: %w", d.ext(), err)
	}
	inner := bufio.NewReaderSize(decompressed, sniffSize)
	innerHeader, err := inner.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error reading %s stream: %w", d.ext(), err)
	}
	if isTar(innerHeader) {
		return extractTar(inner, destDir, overwrite)
	}

	outName := strings.TrimSuffix(name, d.ext())
	if outName == name || outName == "" {
		outName = name + ".out"
	}
	target := filepath.Join(destDir, outName)
	logger := logging.GetLogger()
	logger.Debug().Str("target", target).Msg("Decompress: File")
	return writeFile(target, inner, 0o644, overwrite)
}

// isTar reports whether header starts with a POSIX or GNU tar header.
func isTar(header []byte) bool {
	return len(header) >= 262 && bytes.Equal(header[257:262], []byte("ustar"))
}

// safeJoin joins name onto destDir and fails when the result would land
// outside destDir.
func safeJoin(destDir, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	destAbs, err := filepath.Abs(destDir)
	if err != nil {
		return "", fmt.Errorf("error getting absolute path of %s: %w", destDir, err)
	}
	target := filepath.Join(destAbs, name)
	if !within(destAbs, target) {
		return "", fmt.Errorf("%w: `%s` outside of `%s`", ErrZipSlip, name, destAbs)
	}
	return target, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func writeFile(target string, r io.Reader, mode os.FileMode, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_EXCL
	if overwrite {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	out, err := os.OpenFile(target, flags, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("error writing %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("error closing file %s: %w", target, err)
	}
	return nil
}
