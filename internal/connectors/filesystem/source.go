// Package filesystem walks and watches local directories for ingestion.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

// Ensure Source implements the interface.
var _ driven.FileSource = (*Source)(nil)

// DefaultMaxFileSize skips files larger than 50 MiB.
const DefaultMaxFileSize int64 = 50 << 20

// ErrClosed is returned by Watch after Close.
var ErrClosed = errors.New("filesystem source is closed")

// Source reads regular, non-hidden files below a root directory.
type Source struct {
	mu          sync.Mutex
	closed      bool
	watchers    []*fsnotify.Watcher
	maxFileSize int64
	logger      *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithMaxFileSize skips files larger than n bytes. Zero disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(s *Source) { s.maxFileSize = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a filesystem source.
func New(opts ...Option) *Source {
	s := &Source{
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "filesystem")
	return s
}

// Validate checks that root exists and is a directory.
func (s *Source) Validate(ctx context.Context, root string) error {
	root = ResolvePath(root)
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("root path error: %s does not exist", root)
		}
		return fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path error: %s is not a directory", root)
	}
	return nil
}

// Walk calls fn for every regular file under root, skipping hidden files
// and directories. Unreadable files are logged and skipped.
func (s *Source) Walk(ctx context.Context, root string, fn func(doc domain.RawDocument) error) error {
	if err := s.Validate(ctx, root); err != nil {
		return err
	}
	root = absPath(root)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			s.logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path != root && hiddenWithin(root, path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		doc, err := s.readDocument(path)
		if err != nil {
			s.logger.Warn("skipping file", "path", path, "error", err)
			return nil
		}
		return fn(*doc)
	})
}

// Watch streams file changes under roots until ctx is cancelled. New
// subdirectories are watched as they appear.
func (s *Source) Watch(ctx context.Context, roots []string) (<-chan domain.RawDocumentChange, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.mu.Unlock()

	abs := make([]string, 0, len(roots))
	for _, root := range roots {
		if err := s.Validate(ctx, root); err != nil {
			return nil, err
		}
		abs = append(abs, absPath(root))
	}
	if len(abs) == 0 {
		return nil, fmt.Errorf("%w: no roots to watch", domain.ErrInvalidInput)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	for _, root := range abs {
		if err := s.addTree(watcher, root, root); err != nil {
			watcher.Close()
			return nil, err
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		watcher.Close()
		return nil, ErrClosed
	}
	s.watchers = append(s.watchers, watcher)
	s.mu.Unlock()

	changes := make(chan domain.RawDocumentChange, 100)
	go s.watchLoop(ctx, watcher, abs, changes)
	return changes, nil
}

func (s *Source) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, roots []string, changes chan<- domain.RawDocumentChange) {
	defer close(changes)
	defer s.release(watcher)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			root := rootOf(roots, event.Name)
			if event.Has(fsnotify.Create) && !hiddenWithin(root, event.Name) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := s.addTree(watcher, root, event.Name); err != nil {
						s.logger.Warn("cannot watch directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			change := s.handleFsEvent(root, event)
			if change == nil {
				continue
			}
			select {
			case changes <- *change:
			case <-ctx.Done():
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watch error", "error", err)
		}
	}
}

// handleFsEvent converts an fsnotify event into a change. It returns nil
// for directories, hidden paths and events that do not alter content.
func (s *Source) handleFsEvent(root string, event fsnotify.Event) *domain.RawDocumentChange {
	if hiddenWithin(root, event.Name) {
		return nil
	}

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		return &domain.RawDocumentChange{
			Type: domain.ChangeDeleted,
			Document: domain.RawDocument{
				URI:      event.Name,
				Filename: filepath.Base(event.Name),
				MIMEType: detectMIMEType(event.Name, nil),
			},
		}
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		doc, err := s.readDocument(event.Name)
		if err != nil {
			s.logger.Warn("cannot read changed file", "path", event.Name, "error", err)
			return nil
		}
		changeType := domain.ChangeUpdated
		if event.Has(fsnotify.Create) {
			changeType = domain.ChangeCreated
		}
		return &domain.RawDocumentChange{Type: changeType, Document: *doc}
	}
	return nil
}

// addTree watches dir and its non-hidden subdirectories.
func (s *Source) addTree(watcher *fsnotify.Watcher, root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hiddenWithin(root, path) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (s *Source) release(watcher *fsnotify.Watcher) {
	s.mu.Lock()
	for i, w := range s.watchers {
		if w == watcher {
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	watcher.Close()
}

// Close stops every active watch. Walk keeps working after Close.
func (s *Source) Close() error {
	s.mu.Lock()
	s.closed = true
	watchers := s.watchers
	s.watchers = nil
	s.mu.Unlock()

	var errs []error
	for _, w := range watchers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Source) readDocument(path string) (*domain.RawDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if s.maxFileSize > 0 && info.Size() > s.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", domain.ErrInvalidInput, info.Size(), s.maxFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	return &domain.RawDocument{
		URI:      path,
		Filename: name,
		MIMEType: detectMIMEType(name, content),
		Content:  content,
		Metadata: map[string]string{
			"filename":  name,
			"extension": strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."),
			"size":      strconv.FormatInt(info.Size(), 10),
			"modified":  info.ModTime().UTC().Format(time.RFC3339),
		},
	}, nil
}

// detectMIMEType guesses a file's type from its name, sniffing content
// when the extension is unknown.
func detectMIMEType(filename string, content []byte) string {
	return domain.DetectMIMEType(filename, content)
}

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.FieldsFunc(filepath.ToSlash(path), func(r rune) bool { return r == '/' }) {
		if part != "." && part != ".." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// hiddenWithin checks only the part of path below root, so a root that
// itself lives under a dot directory is still walked.
func hiddenWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return isHidden(path)
	}
	return isHidden(rel)
}

func rootOf(roots []string, path string) string {
	best := ""
	for _, r := range roots {
		if (path == r || strings.HasPrefix(path, r+string(filepath.Separator))) && len(r) > len(best) {
			best = r
		}
	}
	return best
}

func absPath(p string) string {
	p = ResolvePath(p)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
