package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const stateFileName = "state.json"

// stateFile is the on-disk layout of a FileKV.
type stateFile struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values"`
}

// FileKV implements KV on top of a single JSON file.
// Every write rewrites the file atomically with 0600 permissions.
type FileKV struct {
	mu   sync.Mutex
	path string
}

// NewFileKV creates a file backed store in baseDir.
// If baseDir is empty, uses ~/.wayfarer/
func NewFileKV(baseDir string) (*FileKV, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".wayfarer")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	kv := &FileKV{path: filepath.Join(baseDir, stateFileName)}

	if _, err := os.Stat(kv.path); os.IsNotExist(err) {
		if err := kv.save(&stateFile{Version: 1, Values: map[string]string{}}); err != nil {
			return nil, err
		}
	}

	log.Debug().Str("path", kv.path).Msg("file storage initialized")

	return kv, nil
}

// Path returns the location of the backing file.
func (f *FileKV) Path() string {
	return f.path
}

func (f *FileKV) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.load()
	if err != nil {
		return "", false, err
	}

	v, ok := st.Values[key]
	return v, ok, nil
}

func (f *FileKV) Set(key, value string) error {
	if key == "" {
		return ErrInvalidKey
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.load()
	if err != nil {
		return err
	}

	st.Values[key] = value

	return f.save(st)
}

func (f *FileKV) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.load()
	if err != nil {
		return err
	}

	if _, ok := st.Values[key]; !ok {
		return nil
	}

	delete(st.Values, key)

	return f.save(st)
}

func (f *FileKV) load() (*stateFile, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &stateFile{Version: 1, Values: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	var st stateFile
	if err := json.Unmarshal(data, &st); err != nil {
		backup := fmt.Sprintf("%s.corrupt-%d", f.path, time.Now().UnixNano())
		if rerr := os.Rename(f.path, backup); rerr != nil {
			return nil, fmt.Errorf("failed to parse state: %w", err)
		}
		log.Warn().Err(err).Str("backup", backup).Msg("state file corrupt, moved aside and starting empty")
		return &stateFile{Version: 1, Values: map[string]string{}}, nil
	}

	if st.Values == nil {
		st.Values = make(map[string]string)
	}

	return &st, nil
}

// save writes the state file atomically.
func (f *FileKV) save(st *stateFile) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tempPath := f.path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	if err := os.Rename(tempPath, f.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save state: %w", err)
	}

	return nil
}
