package rget

import (
	"fmt"

	"github.com/modelget/rget/pkg/client"
)

type ManifestEntry struct {
	URL  string
	Dest string
}

// Manifest groups entries by scheme://host.
type Manifest map[string][]ManifestEntry

func (m Manifest) AddEntry(url, dest string) (Manifest, error) {
	key, err := client.GetSchemeHostKey(url)
	if err != nil {
		return nil, fmt.Errorf("error parsing url %s: %w", url, err)
	}
	if m == nil {
		m = make(Manifest)
	}
	m[key] = append(m[key], ManifestEntry{URL: url, Dest: dest})
	return m, nil
}

// Len returns the number of entries across all hosts.
func (m Manifest) Len() int {
	n := 0
	for _, entries := range m {
		n += len(entries)
	}
	return n
}
