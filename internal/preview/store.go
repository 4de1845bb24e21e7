// Package preview keeps short-lived copies of uploads and their GLB
// previews on disk and serves them under /files/.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const tempPrefix = ".tmp-"

var (
	// ErrNotFound is returned for names the store does not hold.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidName is returned for names not produced by NewID.
	ErrInvalidName = errors.New("invalid artifact name")

	artifactName = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.[a-z0-9]{1,8}$`)

	contentTypes = map[string]string{
		".glb": "model/gltf-binary",
		".stl": "model/stl",
		".obj": "model/obj",
		".3mf": "model/3mf",
	}
)

type entry struct {
	path    string
	created time.Time
	refs    int
}

// Store is a directory of artifacts that expire after a fixed TTL. An
// artifact that is being read is never removed; it becomes eligible again
// once every reader has released it.
type Store struct {
	dir     string
	ttl     time.Duration
	now     func() time.Time
	log     zerolog.Logger
	onEvict func(n int)

	mu      sync.Mutex
	entries map[string]*entry
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for eviction and cleanup messages.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithEvictHook is called after each sweep that removed at least one artifact.
func WithEvictHook(fn func(n int)) Option {
	return func(s *Store) { s.onEvict = fn }
}

// New creates dir if needed and removes artifacts left over from a
// previous run.
func New(dir string, ttl time.Duration, opts ...Option) (*Store, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("preview ttl must be positive, got %s", ttl)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create preview dir: %w", err)
	}

	s := &Store{
		dir:     dir,
		ttl:     ttl,
		now:     time.Now,
		log:     zerolog.Nop(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.removeOrphans(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewID returns a fresh artifact id. Artifacts belonging to one upload
// share an id and differ by extension.
func NewID() string {
	return uuid.NewString()
}

// Put stores the bytes produced by write under name (id + extension).
// The file only becomes visible once write has returned successfully.
func (s *Store) Put(name string, write func(io.Writer) error) error {
	if !artifactName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create preview temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write preview %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close preview %s: %w", name, err)
	}

	final := filepath.Join(s.dir, name)
	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("publish preview %s: %w", name, err)
	}

	s.mu.Lock()
	s.entries[name] = &entry{path: final, created: s.now()}
	s.mu.Unlock()
	return nil
}

// Open returns the artifact and a release func that must be called when
// the caller is done with it. The artifact is pinned until then.
func (s *Store) Open(name string) (*os.File, func(), error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	e.refs++
	s.mu.Unlock()

	release := sync.OnceFunc(func() {
		s.mu.Lock()
		e.refs--
		s.mu.Unlock()
	})

	f, err := os.Open(e.path)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("open preview %s: %w", name, err)
	}
	return f, release, nil
}

// Len reports how many artifacts are stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired artifacts that nobody is reading and returns how
// many were removed.
func (s *Store) Sweep() int {
	return s.evict(func(e *entry, now time.Time) bool {
		return now.Sub(e.created) >= s.ttl
	})
}

// Purge removes every artifact that nobody is reading.
func (s *Store) Purge() int {
	return s.evict(func(*entry, time.Time) bool { return true })
}

func (s *Store) evict(expired func(*entry, time.Time) bool) int {
	now := s.now()

	s.mu.Lock()
	var victims []string
	for name, e := range s.entries {
		if e.refs == 0 && expired(e, now) {
			victims = append(victims, e.path)
			delete(s.entries, name)
		}
	}
	s.mu.Unlock()

	for _, p := range victims {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", p).Msg("remove preview artifact")
		}
	}
	if len(victims) > 0 {
		s.log.Debug().Int("count", len(victims)).Msg("evicted preview artifacts")
		if s.onEvict != nil {
			s.onEvict(len(victims))
		}
	}
	return len(victims)
}

// Run sweeps every interval until ctx is done, then purges what is left.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Purge()
			return nil
		case <-t.C:
			s.Sweep()
		}
	}
}

// ServeHTTP serves an artifact by the last element of the request path.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Base(r.URL.Path)
	if !artifactName.MatchString(name) {
		http.NotFound(w, r)
		return
	}

	f, release, err := s.Open(name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Error().Err(err).Str("name", name).Msg("open preview artifact")
		}
		http.NotFound(w, r)
		return
	}
	defer release()
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if ct, ok := contentTypes[filepath.Ext(name)]; ok {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Store) removeOrphans() error {
	des, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read preview dir: %w", err)
	}
	removed := 0
	for _, de := range des {
		name := de.Name()
		if !de.Type().IsRegular() {
			continue
		}
		if !artifactName.MatchString(name) && !strings.HasPrefix(name, tempPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return fmt.Errorf("remove orphan preview %s: %w", name, err)
		}
		removed++
	}
	if removed > 0 {
		s.log.Info().Int("count", removed).Str("dir", s.dir).Msg("removed orphan preview artifacts")
	}
	return nil
}
