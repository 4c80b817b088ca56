package download

import (
	"mime"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// FilenameFromDisposition extracts a safe base file name from a
// Content-Disposition header value. The RFC 5987 filename* parameter is
// preferred over filename. Returns "" when no usable name is present.
func FilenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}

	if name := extendedParam(header); name != "" {
		return sanitizeFilename(name)
	}
	var name string
	if _, params, err := mime.ParseMediaType(header); err == nil {
		name = params["filename"]
	}
	if name == "" {
		name = plainParam(header)
	}
	return sanitizeFilename(unescapePercent(name))
}

// extendedParam decodes filename*=charset'lang'pct-encoded in any charset
// known to htmlindex.
func extendedParam(header string) string {
	raw, ok := paramValue(header, "filename*")
	if !ok {
		return ""
	}
	parts := strings.SplitN(strings.Trim(raw, `"`), "'", 3)
	if len(parts) != 3 {
		return ""
	}
	value, err := url.PathUnescape(parts[2])
	if err != nil {
		return ""
	}
	charset := strings.ToLower(parts[0])
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return value
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return ""
	}
	decoded, err := enc.NewDecoder().String(value)
	if err != nil {
		return ""
	}
	return decoded
}

// plainParam reads filename= without the quoting rules mime enforces. Servers
// send unquoted names containing spaces or semicolons often enough to matter.
func plainParam(header string) string {
	raw, ok := paramValue(header, "filename")
	if !ok {
		return ""
	}
	return strings.Trim(raw, `"`)
}

func unescapePercent(name string) string {
	if !strings.Contains(name, "%") {
		return name
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}

func paramValue(header, key string) (string, bool) {
	for _, part := range strings.Split(header, ";") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if found && strings.EqualFold(strings.TrimSpace(k), key) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func sanitizeFilename(name string) string {
	if name == "" {
		return ""
	}
	if !utf8.ValidString(name) {
		// Header bytes that are not UTF-8 are taken as ISO-8859-1.
		if decoded, err := charmap.ISO8859_1.NewDecoder().String(name); err == nil {
			name = decoded
		}
	}
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimSpace(filepath.Base(filepath.Clean("/" + name)))
	switch name {
	case "", ".", "..", "/":
		return ""
	}
	return name
}
