package kv

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/multierr"
)

// tempPattern names in-flight writes. Keys shares the prefix to skip them.
const tempPattern = ".tmp-*"

// File stores one file per key under a root directory. Keys map to relative
// slash-separated paths. Writes go through a temp file and a rename.
type File struct {
	mu   sync.Mutex
	root string
}

func NewFile(root string) (*File, error) {
	if root == "" {
		return nil, errors.New("kv: file store needs a root directory")
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("kv: create %s: %w", root, err)
	}
	return &File{root: root}, nil
}

func (f *File) path(key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	p := filepath.Join(f.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(f.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("kv: key %q escapes the store root", key)
	}
	return p, nil
}

func (f *File) Get(key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("kv: read %s: %w", key, err)
	}
	return data, nil
}

func (f *File) Set(key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("kv: write %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("kv: write %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("kv: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kv: write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kv: write %s: %w", key, err)
	}
	return nil
}

func (f *File) Delete(key string) (bool, error) {
	p, err := f.path(key)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("kv: delete %s: %w", key, err)
	}
	for dir := filepath.Dir(p); dir != f.root; dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return true, nil
}

// Keys lists every stored file except in-flight temp files.
func (f *File) Keys() ([]string, error) {
	var keys []string
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == f.root {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), strings.TrimSuffix(tempPattern, "*")) {
			return nil
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kv: list %s: %w", f.root, err)
	}
	slices.Sort(keys)
	return keys, nil
}

// Clear deletes every key and reports all failures together.
func (f *File) Clear() error {
	keys, err := f.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		_, e := f.Delete(k)
		err = multierr.Append(err, e)
	}
	return err
}
