package blueprint

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
)

// Orchestrator names the template that asks for all assets in one response.
const Orchestrator = "orchestrator"

const templateExt = ".md"

//go:embed templates/*.md
var embeddedTemplates embed.FS

// NotFoundError is returned when no template is registered under a name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("blueprint %q not found", e.Name)
}

// Store resolves a blueprint name to its template text.
type Store interface {
	Load(name string) (string, error)
	Names() ([]string, error)
}

// FSStore reads every *.md file at the root of an fs.FS on first use and
// serves lookups from that snapshot for the rest of its lifetime.
type FSStore struct {
	fsys fs.FS

	once      sync.Once
	templates map[string]string
	err       error
}

// New creates a store over fsys. Nothing is read until the first lookup.
func New(fsys fs.FS) *FSStore {
	return &FSStore{fsys: fsys}
}

// Embedded returns a store over the templates compiled into the binary.
func Embedded() *FSStore {
	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		return &FSStore{err: err}
	}
	return New(sub)
}

// Dir returns a store over a directory on disk.
func Dir(dir string) *FSStore {
	return New(os.DirFS(dir))
}

func (s *FSStore) Load(name string) (string, error) {
	if err := s.load(); err != nil {
		return "", err
	}
	key := normalizeName(name)
	text, ok := s.templates[key]
	if !ok {
		return "", &NotFoundError{Name: name}
	}
	return text, nil
}

func (s *FSStore) Names() ([]string, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *FSStore) load() error {
	s.once.Do(func() {
		if s.err != nil {
			return
		}
		if s.fsys == nil {
			s.err = errors.New("blueprint store has no filesystem")
			return
		}
		entries, err := fs.ReadDir(s.fsys, ".")
		if err != nil {
			s.err = fmt.Errorf("list blueprints: %w", err)
			return
		}
		templates := make(map[string]string, len(entries))
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(path.Ext(entry.Name()), templateExt) {
				continue
			}
			data, err := fs.ReadFile(s.fsys, entry.Name())
			if err != nil {
				s.err = fmt.Errorf("read blueprint %s: %w", entry.Name(), err)
				return
			}
			templates[normalizeName(entry.Name())] = string(data)
		}
		s.templates = templates
	})
	return s.err
}

// Overlay resolves from primary first and falls back to fallback when
// primary has no template with that name.
func Overlay(primary, fallback Store) Store {
	return &overlay{primary: primary, fallback: fallback}
}

type overlay struct {
	primary  Store
	fallback Store
}

func (o *overlay) Load(name string) (string, error) {
	text, err := o.primary.Load(name)
	if err == nil {
		return text, nil
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		return "", err
	}
	return o.fallback.Load(name)
}

func (o *overlay) Names() ([]string, error) {
	seen := make(map[string]struct{})
	for _, s := range []Store{o.primary, o.fallback} {
		names, err := s.Names()
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			seen[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, templateExt)
}
