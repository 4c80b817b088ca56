package download

import (
	"net/http"
	"strings"
)

// DuplicatePolicy decides what happens when the destination file already
// exists before a transfer starts.
type DuplicatePolicy int

const (
	// Reject fails the download without writing anything. It is the default.
	Reject DuplicatePolicy = iota
	// Overwrite replaces the existing file when the finished download is renamed
	// into place.
	Overwrite
	// RenameNew picks the first free name of the form <base>_N<ext>, N >= 2.
	RenameNew
)

func (p DuplicatePolicy) String() string {
	switch p {
	case Overwrite:
		return "overwrite"
	case RenameNew:
		return "rename-new"
	default:
		return "reject"
	}
}

// ParseDuplicatePolicy accepts "overwrite", "rename-new" and the spellings used
// by the model manager UI ("Overwrite", "Rename New"). Anything else is Reject.
func ParseDuplicatePolicy(s string) DuplicatePolicy {
	normalized := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))

	switch normalized {
	case "overwrite":
		return Overwrite
	case "renamenew":
		return RenameNew
	default:
		return Reject
	}
}

// Request describes one download. Path wins over Folder+Filename, which wins
// over Folder plus the name the server suggests in Content-Disposition.
type Request struct {
	URL       string
	Folder    string
	Filename  string
	Path      string
	Headers   http.Header
	Duplicate DuplicatePolicy
}
