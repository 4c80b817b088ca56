package multifile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	rget "github.com/modelget/rget/pkg"
)

// A manifest is a file consisting of pairs of URLs and paths:
//
// http://example.com/foo/bar.bin     models/bar.bin
// http://example.com/foo/bar/baz.bin models/baz.bin
//
// Blank lines and lines starting with # are ignored. The pairs are separated
// by arbitrary whitespace.

func manifestFile(manifestPath string) (io.ReadCloser, error) {
	if manifestPath == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	file, err := os.Open(manifestPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("manifest file %s does not exist", manifestPath)
	}
	if err != nil {
		return nil, fmt.Errorf("error opening manifest file %s: %w", manifestPath, err)
	}
	return file, nil
}

func parseLine(line string) (urlString, dest string, err error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "", "", fmt.Errorf("error parsing manifest invalid line format `%s`", line)
	}
	return fields[0], fields[1], nil
}

func checkSeenDestinations(destinations map[string]string, dest string, urlString string) error {
	if seenURL, ok := destinations[dest]; ok {
		if seenURL != urlString {
			return fmt.Errorf("duplicate destination %s with different urls: %s and %s", dest, seenURL, urlString)
		}
		return fmt.Errorf("duplicate entry: %s %s", urlString, dest)
	}
	return nil
}

func parseManifest(r io.Reader) (rget.Manifest, error) {
	seenDestinations := make(map[string]string)
	var manifest rget.Manifest

	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urlString, dest, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := checkSeenDestinations(seenDestinations, dest, urlString); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		seenDestinations[dest] = urlString

		manifest, err = manifest.AddEntry(urlString, dest)
		if err != nil {
			return nil, fmt.Errorf("line %d: error adding url: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}
	return manifest, nil
}
