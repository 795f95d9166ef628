package config

import (
	"io/fs"
	"os"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// DomainMap maps a bare host name (without "www.") to the display name used
// in book headers, e.g. "nytimes.com" -> "The New York Times".
type DomainMap map[string]string

// Lookup returns the display name for domain, or domain itself.
func (m DomainMap) Lookup(domain string) string {
	if name, ok := m[domain]; ok && name != "" {
		return name
	}
	return domain
}

// LoadDomainMap reads the JSON object at path. A missing file yields an empty
// map.
func LoadDomainMap(path string) (DomainMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DomainMap{}, nil
		}
		return nil, errors.WithStack(err)
	}

	m := DomainMap{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "invalid domain map %s", path)
	}
	return m, nil
}
