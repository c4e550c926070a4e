package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jgoulah/meterfetch/pkg/models"
)

const fileExt = ".json"

// File stores each payload verbatim in <dir>/<key>.json
type File struct {
	dir   string
	group singleflight.Group
}

// NewFile creates a file cache rooted at dir. The directory is created on
// first store.
func NewFile(dir string) *File {
	return &File{dir: dir}
}

// Path returns the artifact path for key. The key is path-escaped so a usage
// point id can never name a file outside dir.
func (f *File) Path(key Key) string {
	return filepath.Join(f.dir, url.PathEscape(key.String())+fileExt)
}

func (f *File) Lookup(_ context.Context, key Key) (models.RawPayload, bool, error) {
	data, err := os.ReadFile(f.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cache file: %w", err)
	}
	return data, true, nil
}

// Store writes the payload to a temp file and hard-links it into place, so
// readers never see a partial artifact and a racing second writer gets
// EEXIST instead of overwriting.
func (f *File) Store(_ context.Context, key Key, payload models.RawPayload) error {
	path := f.Path(key)
	_, err, _ := f.group.Do(path, func() (interface{}, error) {
		return nil, f.write(path, payload)
	})
	return err
}

func (f *File) write(path string, payload models.RawPayload) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, ".pending-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp cache file: %w", err)
	}

	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return fmt.Errorf("publishing cache file: %w", err)
	}
	return nil
}

// Entry describes one artifact on disk
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// List returns the artifacts in the cache directory, sorted by name
func (f *File) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(f.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache directory: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), fileExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", de.Name(), err)
		}
		name := strings.TrimSuffix(de.Name(), fileExt)
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
		entries = append(entries, Entry{
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
