// Package categories names the role of an address (server, workstation,
// cloud provider, country) so plots can color entities by it.
package categories

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sudorandom/flowscope/pkg/utils"
)

// Store resolves addresses to categories by longest-prefix match over the
// loaded mappings, then by the GeoIP fallback when one is attached.
type Store struct {
	prefixes *utils.PrefixStore
	geo      *GeoIP
	log      *zap.SugaredLogger
}

type Option func(*Store)

// WithGeoIP attaches a country database consulted for unmapped addresses.
func WithGeoIP(g *GeoIP) Option {
	return func(s *Store) { s.geo = g }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Store) { s.log = log }
}

// Open creates a store. An empty path keeps everything in memory.
func Open(path string, opts ...Option) (*Store, error) {
	ps, err := utils.OpenPrefixStore(path)
	if err != nil {
		return nil, fmt.Errorf("open category store: %w", err)
	}
	s := &Store{prefixes: ps, log: zap.NewNop().Sugar()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close releases the prefix table and the GeoIP database, if any.
func (s *Store) Close() error {
	err := s.prefixes.Close()
	if s.geo != nil {
		err = multierr.Append(err, s.geo.Close())
	}
	return err
}

// Load adds a category -> addresses mapping. Entries may be host addresses or
// CIDR prefixes. When two categories claim the same prefix the one that sorts
// first wins. Malformed entries are skipped and returned.
func (s *Store) Load(mapping map[string][]string) (skipped []string, err error) {
	names := make([]string, 0, len(mapping))
	for name := range mapping {
		names = append(names, name)
	}
	slices.Sort(names)

	entries := make(map[string][]byte)
	seen := make(map[string]bool)
	for _, name := range names {
		for _, raw := range mapping[name] {
			network, bits, perr := utils.ParsePrefix(raw)
			if perr != nil {
				skipped = append(skipped, raw)
				continue
			}
			key := fmt.Sprintf("%s/%d", utils.IntToIP(network), bits)
			if seen[key] {
				continue
			}
			seen[key] = true
			entries[key] = []byte(name)
		}
	}
	if len(skipped) > 0 {
		s.log.Warnf("Skipped %d malformed category entries, first: %s", len(skipped), skipped[0])
	}
	if _, err := s.prefixes.BatchInsert(entries); err != nil {
		return skipped, fmt.Errorf("store categories: %w", err)
	}
	s.log.Infof("Loaded %d category prefixes across %d categories", len(entries), len(names))
	return skipped, nil
}

// Lookup returns the category for an address and whether one was found.
func (s *Store) Lookup(addr string) (string, bool) {
	v, _, err := s.prefixes.LookupString(strings.TrimSpace(addr))
	if err != nil {
		return "", false
	}
	if v != nil {
		return string(v), true
	}
	if s.geo != nil {
		if _, name, ok := s.geo.Country(addr); ok {
			return "country:" + name, true
		}
	}
	return "", false
}

// Category is Lookup without the flag; "" means uncategorized.
func (s *Store) Category(addr string) string {
	c, _ := s.Lookup(addr)
	return c
}

// Categories lists the loaded mapping back as category -> prefixes.
func (s *Store) Categories() (map[string][]string, error) {
	out := make(map[string][]string)
	err := s.prefixes.ForEach(func(prefix string, v []byte) error {
		out[string(v)] = append(out[string(v)], prefix)
		return nil
	})
	return out, err
}
