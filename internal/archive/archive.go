// Package archive keeps a history of rendered system prompts in object
// storage, one markdown object per render.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/ghimmohmoh/ghimmohmoh/internal/storage"
	"github.com/ghimmohmoh/ghimmohmoh/internal/tableref"
)

const (
	ContentType  = "text/markdown; charset=utf-8"
	digestLength = 12
)

var ErrEmpty = errors.New("no archived prompts")

type Entry struct {
	Key        string    `json:"key"`
	Digest     string    `json:"digest"`
	Size       int64     `json:"size_bytes"`
	RenderedAt time.Time `json:"rendered_at"`
}

type Archive struct {
	Store storage.ObjectStore
	Now   func() time.Time
}

func New(store storage.ObjectStore) *Archive {
	return &Archive{Store: store, Now: time.Now}
}

// Save writes prompt under the table's prefix, keyed by render time and a
// content digest.
func (a *Archive) Save(ctx context.Context, table tableref.Locator, prompt string) (Entry, error) {
	if a.Store == nil {
		return Entry{}, fmt.Errorf("object store is required")
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	renderedAt := now().UTC()
	digest := Digest(prompt)

	key, err := storage.BuildPromptPath(table, renderedAt, digest)
	if err != nil {
		return Entry{}, fmt.Errorf("build archive key: %w", err)
	}
	body := []byte(prompt)
	info, err := a.Store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), storage.PutOptions{ContentType: ContentType})
	if err != nil {
		return Entry{}, fmt.Errorf("archive prompt: %w", err)
	}
	size := info.Size
	if size == 0 {
		size = int64(len(body))
	}
	return Entry{Key: key, Digest: digest, Size: size, RenderedAt: renderedAt}, nil
}

// List returns the archived prompts for table, oldest first.
func (a *Archive) List(ctx context.Context, table tableref.Locator) ([]Entry, error) {
	if a.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	prefix, err := storage.PromptPrefix(table)
	if err != nil {
		return nil, err
	}
	objects, err := a.Store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list archived prompts: %w", err)
	}

	entries := make([]Entry, 0, len(objects))
	for _, object := range objects {
		entry, ok := parseKey(object.Key)
		if !ok {
			continue
		}
		entry.Size = object.Size
		entries = append(entries, entry)
	}
	return entries, nil
}

// Latest returns the most recent archived prompt for table and its text.
func (a *Archive) Latest(ctx context.Context, table tableref.Locator) (Entry, string, error) {
	entries, err := a.List(ctx, table)
	if err != nil {
		return Entry{}, "", err
	}
	if len(entries) == 0 {
		return Entry{}, "", ErrEmpty
	}
	entry := entries[len(entries)-1]

	reader, err := a.Store.Get(ctx, entry.Key)
	if err != nil {
		return Entry{}, "", fmt.Errorf("read archived prompt %q: %w", entry.Key, err)
	}
	defer func() { _ = reader.Close() }()
	body, err := io.ReadAll(reader)
	if err != nil {
		return Entry{}, "", fmt.Errorf("read archived prompt %q: %w", entry.Key, err)
	}
	return entry, string(body), nil
}

func Digest(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:digestLength]
}

func parseKey(key string) (Entry, bool) {
	name, ok := strings.CutSuffix(path.Base(key), ".md")
	if !ok {
		return Entry{}, false
	}
	nanos, digest, ok := strings.Cut(name, "-")
	if !ok || digest == "" {
		return Entry{}, false
	}
	unixNano, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return Entry{}, false
	}
	return Entry{Key: key, Digest: digest, RenderedAt: time.Unix(0, unixNano).UTC()}, true
}
