package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Txn is a single BadgerDB transaction. Only one iterator may be open at a time, so every
// scan collects its results before returning.
type Txn struct {
	txn *badger.Txn
}

// KV is a key/value pair returned by scans.
type KV struct {
	Key   []byte
	Value []byte
}

// Get returns the value stored at key.
func (t *Txn) Get(key []byte) ([]byte, bool, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, fmt.Errorf("read %q: %w", key, err)
	}
	return value, true, nil
}

// Has reports whether key exists.
func (t *Txn) Has(key []byte) (bool, error) {
	_, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %q: %w", key, err)
	}
	return true, nil
}

// Set stores value at key.
func (t *Txn) Set(key, value []byte) error {
	if err := t.txn.Set(key, value); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (t *Txn) Delete(key []byte) error {
	if err := t.txn.Delete(key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Scan returns up to limit entries under prefix whose key sorts after startAfter.
// A nil startAfter scans from the beginning; a zero limit scans everything.
func (t *Txn) Scan(prefix, startAfter []byte, limit int) ([]KV, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	seek := prefix
	if startAfter != nil {
		seek = startAfter
	}

	var out []KV
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		if startAfter != nil && bytes.Equal(item.Key(), startAfter) {
			continue
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", item.Key(), err)
		}
		out = append(out, KV{Key: item.KeyCopy(nil), Value: value})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ScanRange returns every entry under prefix with from <= key <= to.
func (t *Txn) ScanRange(prefix, from, to []byte) ([]KV, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	var out []KV
	for it.Seek(from); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		if bytes.Compare(item.Key(), to) > 0 {
			break
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", item.Key(), err)
		}
		out = append(out, KV{Key: item.KeyCopy(nil), Value: value})
	}
	return out, nil
}

// SeekLast returns the entry under prefix with the largest key that is <= upTo.
func (t *Txn) SeekLast(prefix, upTo []byte) (KV, bool, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = true
	opts.PrefetchValues = false
	it := t.txn.NewIterator(opts)
	defer it.Close()

	it.Seek(upTo)
	if !it.ValidForPrefix(prefix) {
		return KV{}, false, nil
	}
	item := it.Item()
	value, err := item.ValueCopy(nil)
	if err != nil {
		return KV{}, false, fmt.Errorf("read %q: %w", item.Key(), err)
	}
	return KV{Key: item.KeyCopy(nil), Value: value}, true, nil
}

// SeekFirst returns the entry under prefix with the smallest key.
func (t *Txn) SeekFirst(prefix []byte) (KV, bool, error) {
	entries, err := t.Scan(prefix, nil, 1)
	if err != nil || len(entries) == 0 {
		return KV{}, false, err
	}
	return entries[0], true, nil
}

// DeletePrefix removes every key under prefix and returns how many were removed.
func (t *Txn) DeletePrefix(prefix []byte) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := t.txn.NewIterator(opts)

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := t.Delete(key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}
