package objectstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalObjectStore implements ObjectStore over the local filesystem,
// rooted at baseDir. Keys are forward-slash paths relative to baseDir;
// ".." segments are rejected so a caller-supplied key can never escape
// the root.
type LocalObjectStore struct {
	baseDir string
}

// NewLocalObjectStore roots a LocalObjectStore at baseDir, creating it if
// it does not already exist.
func NewLocalObjectStore(baseDir string) (*LocalObjectStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &LocalObjectStore{baseDir: baseDir}, nil
}

func (l *LocalObjectStore) resolve(key string) (string, error) {
	if key == "" || strings.Contains(key, "\x00") {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(filepath.ToSlash(key), "/") {
		if seg == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := filepath.Clean("/" + key)
	if cleaned == "/" {
		return "", ErrInvalidKey
	}
	full := filepath.Join(l.baseDir, cleaned)
	if !strings.HasPrefix(full, filepath.Clean(l.baseDir)+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return full, nil
}

func (l *LocalObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, ObjectAttrs, error) {
	full, err := l.resolve(key)
	if err != nil {
		return nil, ObjectAttrs{}, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectAttrs{}, ErrNotFound
		}
		return nil, ObjectAttrs{}, err
	}
	attrs, err := l.statAttrs(full, key)
	if err != nil {
		f.Close()
		return nil, ObjectAttrs{}, err
	}
	return f, attrs, nil
}

func (l *LocalObjectStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (string, error) {
	full, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	tmp := full + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	hash := md5.New()
	if _, err := io.Copy(io.MultiWriter(f, hash), r); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func (l *LocalObjectStore) Delete(ctx context.Context, key string) error {
	full, err := l.resolve(key)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List walks the whole tree under baseDir and filters by Prefix.
// Delimiter and ContinuationToken are ignored: no common prefixes are
// returned and the result is never truncated.
func (l *LocalObjectStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	var objects []ObjectAttrs
	err := filepath.Walk(l.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.baseDir, path)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if opts.Prefix != "" && !strings.HasPrefix(key, opts.Prefix) {
			return nil
		}
		objects = append(objects, ObjectAttrs{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return ListResult{}, err
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	if opts.MaxKeys > 0 && len(objects) > opts.MaxKeys {
		objects = objects[:opts.MaxKeys]
	}
	return ListResult{Objects: objects}, nil
}

func (l *LocalObjectStore) Head(ctx context.Context, key string) (ObjectAttrs, error) {
	full, err := l.resolve(key)
	if err != nil {
		return ObjectAttrs{}, err
	}
	return l.statAttrs(full, key)
}

func (l *LocalObjectStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	r, _, err := l.Get(ctx, srcKey)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = l.Put(ctx, dstKey, r, PutOptions{})
	return err
}

func (l *LocalObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	full, err := l.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *LocalObjectStore) statAttrs(full, key string) (ObjectAttrs, error) {
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectAttrs{}, ErrNotFound
		}
		return ObjectAttrs{}, err
	}
	return ObjectAttrs{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

var _ ObjectStore = (*LocalObjectStore)(nil)
