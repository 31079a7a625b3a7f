package generator

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCacheCorrupt marks a cache file that exists but cannot be parsed.
// The runner decides whether that forces regeneration or aborts the run.
var ErrCacheCorrupt = errors.New("cache record is corrupt")

// cacheRecord is the persisted per-group state. Only Hash is required to
// round-trip; external tooling may add fields without breaking us.
type cacheRecord struct {
	Hash string `json:"hash"`
}

// loadCache reads a group's cache record. An absent file is not an error: it
// yields a zero record, meaning no prior successful generation.
func loadCache(path string) (cacheRecord, error) {
	var rec cacheRecord

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rec, nil
		}
		return rec, err
	}
	defer f.Close()

	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&rec); err != nil {
		return cacheRecord{}, fmt.Errorf("%w: %s: %v", ErrCacheCorrupt, path, err)
	}
	return rec, nil
}

// saveCache persists a group's cache record, creating the parent directory
// if needed. Callers must only invoke this after generation and distribution
// both succeeded.
func saveCache(path string, rec cacheRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
