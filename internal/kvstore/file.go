package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is a Store persisted as a single JSON object on disk. Every Set
// and Remove rewrites the file atomically (temp file + rename), so readers in
// other processes never observe a partial write.
type FileStore struct {
	mu    sync.Mutex
	path  string
	quota int
}

// NewFileStore returns a FileStore for path. The file is created lazily on
// the first write. quota <= 0 means unlimited.
func NewFileStore(path string, quota int) *FileStore {
	return &FileStore{path: path, quota: quota}
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

// load reads the file. A missing file is empty; a corrupted file is reported
// so callers can decide, but Get treats it as empty.
func (f *FileStore) load() (map[string]string, error) {
	data := make(map[string]string)
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return data, fmt.Errorf("reading %s: %w", f.path, err)
	}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return make(map[string]string), fmt.Errorf("decoding %s: %w", f.path, err)
	}
	return data, nil
}

func (f *FileStore) save(data map[string]string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", f.path, err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", f.path, err)
	}
	return nil
}

func (f *FileStore) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

// Set stores value under key. A corrupted file is replaced.
func (f *FileStore) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, _ := f.load()
	if f.quota > 0 && usage(data, key, value) > f.quota {
		return ErrQuotaExceeded
	}
	data[key] = value
	return f.save(data)
}

func (f *FileStore) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, _ := f.load()
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return f.save(data)
}
