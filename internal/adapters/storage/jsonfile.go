package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/jsamuelsen/quotebot/internal/domain"
)

const (
	defaultFileMode fs.FileMode = 0o644

	lockRetryDelay = 25 * time.Millisecond
)

// JSONFileStore keeps the QuoteSet in a single JSON document:
//
//	{
//	    "quotes": [
//	        {"text": "...", "author": "...", "theme": "...", "used": false}
//	    ]
//	}
//
// Writes go to a temp file in the same directory which is then renamed over
// the target, so readers never observe a partial document. Writers coordinate
// through an advisory lock on a "<path>.lock" sidecar.
type JSONFileStore struct {
	path   string
	logger *slog.Logger
}

// NewJSONFileStore returns a store backed by the file at path.
func NewJSONFileStore(path string, logger *slog.Logger) *JSONFileStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &JSONFileStore{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *JSONFileStore) Path() string { return s.path }

// LockPath returns the sidecar file WithLock locks.
func (s *JSONFileStore) LockPath() string { return s.path + ".lock" }

// WithLock holds an exclusive flock on the sidecar while fn runs.
// Every JSONFileStore on the same path, in any process, waits for it.
func (s *JSONFileStore) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return domain.NewStorageError("lock", s.LockPath(), err)
	}

	lock := flock.New(s.LockPath(), flock.SetPermissions(defaultFileMode))

	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err == nil && !locked {
		err = errors.New("lock not acquired")
	}

	if err != nil {
		_ = lock.Close()
		return domain.NewStorageError("lock", s.LockPath(), err)
	}

	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.WarnContext(ctx, "releasing quote file lock",
				slog.String("path", s.LockPath()),
				slog.Any("error", err),
			)
		}
	}()

	return fn(ctx)
}

// Load reads and validates the whole document.
// A file that does not exist yet is an empty collection.
func (s *JSONFileStore) Load(ctx context.Context) (domain.QuoteSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("load", s.path, err)
	}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.DebugContext(ctx, "quote file does not exist yet", slog.String("path", s.path))
		return domain.QuoteSet{}, nil
	}

	if err != nil {
		return nil, domain.NewStorageError("load", s.path, err)
	}

	return decodeDocument(b)
}

// Save replaces the document with set.
func (s *JSONFileStore) Save(ctx context.Context, set domain.QuoteSet) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("save", s.path, err)
	}

	b, err := encodeDocument(set)
	if err != nil {
		return domain.NewStorageError("save", s.path, err)
	}

	mode := defaultFileMode
	if fi, err := os.Stat(s.path); err == nil {
		mode = fi.Mode().Perm()
	}

	if err := writeFileAtomic(s.path, b, mode); err != nil {
		return domain.NewStorageError("save", s.path, err)
	}

	s.logger.DebugContext(ctx, "quotes saved",
		slog.String("path", s.path),
		slog.Int("count", len(set)),
	)

	return nil
}

// Name implements ports.HealthChecker.
func (s *JSONFileStore) Name() string { return "quote-store" }

// Check reports whether the file (or, before the first save, its directory) is reachable.
func (s *JSONFileStore) Check(_ context.Context) error {
	if _, err := os.Stat(s.path); err == nil || !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	dir := filepath.Dir(s.path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("quote directory %s: %w", dir, err)
	}

	return nil
}

// Close is a no-op; the file is opened per operation.
func (s *JSONFileStore) Close() error { return nil }

type quoteRecord struct {
	Text   string `json:"text"`
	Author string `json:"author"`
	Theme  string `json:"theme"`
	Used   bool   `json:"used"`
}

type quoteDocument struct {
	Quotes []quoteRecord `json:"quotes"`
}

func encodeDocument(set domain.QuoteSet) ([]byte, error) {
	doc := quoteDocument{Quotes: make([]quoteRecord, len(set))}
	for i, q := range set {
		doc.Quotes[i] = quoteRecord{Text: q.Text, Author: q.Author, Theme: q.Theme, Used: q.Used}
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")

	if err := enc.Encode(doc); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// decodeDocument parses b field by field so that every shape problem is
// reported with its location instead of being zero-filled.
func decodeDocument(b []byte) (domain.QuoteSet, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(b, &top); err != nil {
		return nil, domain.NewMalformedDataError(-1, "", "invalid JSON document: "+err.Error())
	}

	raw, ok := top["quotes"]
	if !ok || isNull(raw) {
		return nil, domain.NewMalformedDataError(-1, "quotes", "missing")
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, domain.NewMalformedDataError(-1, "quotes", "must be a list")
	}

	set := make(domain.QuoteSet, 0, len(records))

	for i, rec := range records {
		q, err := decodeRecord(i, rec)
		if err != nil {
			return nil, err
		}

		set = append(set, q)
	}

	return set, nil
}

func decodeRecord(i int, rec json.RawMessage) (domain.Quote, error) {
	var fields map[string]json.RawMessage
	if isNull(rec) || json.Unmarshal(rec, &fields) != nil {
		return domain.Quote{}, domain.NewMalformedDataError(i, "", "must be an object")
	}

	text, err := stringField(i, fields, "text", true)
	if err != nil {
		return domain.Quote{}, err
	}

	author, err := stringField(i, fields, "author", false)
	if err != nil {
		return domain.Quote{}, err
	}

	theme, err := stringField(i, fields, "theme", true)
	if err != nil {
		return domain.Quote{}, err
	}

	var used bool
	if raw, ok := fields["used"]; ok {
		if isNull(raw) || json.Unmarshal(raw, &used) != nil {
			return domain.Quote{}, domain.NewMalformedDataError(i, "used", "must be a boolean")
		}
	}

	return domain.Quote{Text: text, Author: author, Theme: theme, Used: used}, nil
}

// stringField requires key to be present and hold a string.
// nonEmpty additionally rejects the empty string.
func stringField(i int, fields map[string]json.RawMessage, key string, nonEmpty bool) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", domain.NewMalformedDataError(i, key, "missing")
	}

	var v string
	if isNull(raw) || json.Unmarshal(raw, &v) != nil {
		return "", domain.NewMalformedDataError(i, key, "must be a string")
	}

	if nonEmpty && v == "" {
		return "", domain.NewMalformedDataError(i, key, "must not be empty")
	}

	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// writeFileAtomic writes b to a temp file next to path, then renames it into place.
func writeFileAtomic(path string, b []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}

	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
