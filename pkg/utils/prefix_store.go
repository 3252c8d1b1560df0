// Package utils provides address helpers and lookup structures shared by the flowscope packages.
package utils

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// PrefixStore maps IPv4 prefixes to values and answers longest-prefix-match queries.
// Keys are the network address (4 bytes) followed by the prefix length (1 byte).
type PrefixStore struct {
	db    *badger.DB
	cache sync.Map
}

type lookupResult struct {
	val     []byte
	maskLen int
}

// OpenPrefixStore opens a badger-backed store at path. An empty path keeps the
// store in memory for the lifetime of the process.
func OpenPrefixStore(path string) (*PrefixStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open prefix store: %w", err)
	}
	return &PrefixStore{db: db}, nil
}

func (s *PrefixStore) Close() error {
	return s.db.Close()
}

func prefixKey(network uint32, bits int) []byte {
	key := make([]byte, 5)
	binary.BigEndian.PutUint32(key, network&MaskBits(bits))
	key[4] = byte(ClampBits(bits))
	return key
}

// ParsePrefix accepts "a.b.c.d/n" or a bare address (treated as /32).
func ParsePrefix(s string) (network uint32, bits int, err error) {
	addr, length, found := strings.Cut(strings.TrimSpace(s), "/")
	bits = 32
	if found {
		if _, err := fmt.Sscanf(length, "%d", &bits); err != nil || bits < 0 || bits > 32 {
			return 0, 0, fmt.Errorf("%w: bad prefix length in %q", ErrMalformedAddress, s)
		}
	}
	network, err = ParseIPv4(addr)
	if err != nil {
		return 0, 0, err
	}
	return network & MaskBits(bits), bits, nil
}

// Insert stores value under a prefix such as "10.0.0.0/8" or a host address.
func (s *PrefixStore) Insert(prefix string, value []byte) error {
	network, bits, err := ParsePrefix(prefix)
	if err != nil {
		return err
	}
	s.cache.Clear()
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(prefixKey(network, bits), value)
	})
}

// BatchInsert stores many prefixes at once. Malformed prefixes are skipped and
// returned so the caller can report them.
func (s *PrefixStore) BatchInsert(entries map[string][]byte) (skipped []string, err error) {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for k, v := range entries {
		network, bits, perr := ParsePrefix(k)
		if perr != nil {
			skipped = append(skipped, k)
			continue
		}
		if err := wb.Set(prefixKey(network, bits), v); err != nil {
			return skipped, err
		}
	}
	s.cache.Clear()
	return skipped, wb.Flush()
}

// Get returns the value stored for exactly this prefix, or ErrNotFound.
func (s *PrefixStore) Get(prefix string) ([]byte, error) {
	network, bits, err := ParsePrefix(prefix)
	if err != nil {
		return nil, err
	}
	var val []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prefixKey(network, bits))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

// Lookup returns the value and prefix length of the longest prefix containing addr.
// A nil value with no error means nothing matched.
func (s *PrefixStore) Lookup(addr uint32) (val []byte, maskLen int, err error) {
	if v, ok := s.cache.Load(addr); ok {
		if v == nil {
			return nil, 0, nil
		}
		res := v.(lookupResult)
		return res.val, res.maskLen, nil
	}

	var foundVal []byte
	var foundMask int
	err = s.db.View(func(txn *badger.Txn) error {
		key := make([]byte, 5)
		for m := 32; m >= 0; m-- {
			binary.BigEndian.PutUint32(key, addr&MaskBits(m))
			key[4] = byte(m)

			item, getErr := txn.Get(key)
			if getErr == nil {
				foundVal, getErr = item.ValueCopy(nil)
				foundMask = m
				return getErr
			}
		}
		return nil
	})

	if err == nil {
		if foundVal == nil {
			s.cache.Store(addr, nil)
		} else {
			s.cache.Store(addr, lookupResult{val: foundVal, maskLen: foundMask})
		}
	}
	return foundVal, foundMask, err
}

// LookupString is Lookup for a dotted-quad address.
func (s *PrefixStore) LookupString(addr string) ([]byte, int, error) {
	v, err := ParseIPv4(addr)
	if err != nil {
		return nil, 0, err
	}
	return s.Lookup(v)
}

// ForEach walks every stored prefix in key order.
func (s *PrefixStore) ForEach(fn func(prefix string, v []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k := item.Key()
			if len(k) != 5 {
				continue
			}
			prefix := fmt.Sprintf("%s/%d", IntToIP(binary.BigEndian.Uint32(k)), k[4])
			err := item.Value(func(v []byte) error {
				return fn(prefix, v)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
