package nero

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Local store keys. Everything the companion keeps on the device lives
// under the "@nero/" namespace.
const (
	keyDeviceID         = "@nero/deviceId"
	keyProfile          = "@nero/memory"
	keyMessages         = "@nero/messages"
	keyEnergy           = "@nero/energy"
	keyTasks            = "@nero/tasks"
	keyPatterns         = "@nero/patterns"
	keyNudges           = "@nero/nudges"
	keyAutoSpeak        = "@nero/settings/autoSpeak"
	keyLastEnergyPrompt = "@nero/settings/lastEnergyPrompt"
	keyOutbox           = "@nero/sync/outbox"
)

// LocalStore is a persisted key → JSON blob map. It is the offline source of
// truth and holds device settings. Writes replace the whole file atomically.
type LocalStore struct {
	mu   sync.Mutex
	path string // empty: memory only
	data map[string]json.RawMessage
}

// OpenLocalStore loads the store at path. A missing file starts empty; a
// corrupt file is logged and also treated as empty.
func OpenLocalStore(path string) (*LocalStore, error) {
	ls := &LocalStore{path: path, data: make(map[string]json.RawMessage)}
	if path == "" {
		return ls, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ls, nil
	}
	if err != nil {
		return nil, fmt.Errorf("nero: read local store: %w", err)
	}
	if err := json.Unmarshal(raw, &ls.data); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("local store is corrupt, starting fresh")
		ls.data = make(map[string]json.RawMessage)
	}
	return ls, nil
}

// NewMemoryLocalStore returns a store that is never written to disk.
func NewMemoryLocalStore() *LocalStore {
	ls, _ := OpenLocalStore("")
	return ls
}

// Get decodes the value under key into v. Returns false when the key is
// absent. A value that no longer decodes is logged and reported absent.
func (ls *LocalStore) Get(key string, v any) bool {
	ls.mu.Lock()
	raw, ok := ls.data[key]
	ls.mu.Unlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("local value is corrupt, ignoring")
		return false
	}
	return true
}

// Set stores v under key and persists the store.
func (ls *LocalStore) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("nero: encode %s: %w", key, err)
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.data[key] = raw
	return ls.flush()
}

// Delete removes key and persists the store.
func (ls *LocalStore) Delete(key string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if _, ok := ls.data[key]; !ok {
		return nil
	}
	delete(ls.data, key)
	return ls.flush()
}

// Keys lists stored keys with the given prefix, sorted.
func (ls *LocalStore) Keys(prefix string) []string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	var keys []string
	for k := range ls.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// flush writes the store through a temp file in the same directory. Caller
// holds mu.
func (ls *LocalStore) flush() error {
	if ls.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(ls.data, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(ls.path, data, 0o600); err != nil {
		return fmt.Errorf("nero: write local store: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp_local_*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
