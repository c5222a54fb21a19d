package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// file is one JSON document on disk. Every read-modify-write holds mu, so
// updates to the same file never interleave within the process.
type file[T any] struct {
	path string
	mu   sync.Mutex
	init func() T
}

func newFile[T any](dir, name string, init func() T) *file[T] {
	return &file[T]{path: filepath.Join(dir, name), init: init}
}

func (f *file[T]) load() (T, error) {
	doc := f.init()
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return f.init(), fmt.Errorf("decode %s: %w", filepath.Base(f.path), err)
	}
	return doc, nil
}

// store writes to a temporary file and renames it over the document.
func (f *file[T]) store(doc T) error {
	data, err := json.Marshal(doc, jsontext.WithIndent("  "))
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(f.path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *file[T]) read(ctx context.Context) (T, error) {
	if err := ctx.Err(); err != nil {
		return f.init(), err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

// update loads the document, applies fn and writes the result back unless
// fn fails.
func (f *file[T]) update(ctx context.Context, fn func(doc *T) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.load()
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}
	return f.store(doc)
}
