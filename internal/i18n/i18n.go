// ABOUTME: Text-domain registry backed by embedded TOML catalogs
// ABOUTME: Picks catalogs with x/text language matching and falls back to source strings

package i18n

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/language"
)

// ErrNoCatalogs is returned by Load when the directory holds no catalog for the domain.
var ErrNoCatalogs = errors.New("no catalogs for text domain")

// Translator maps source strings to localized strings.
type Translator interface {
	T(msg string) string
	Tf(msg string, args ...any) string
}

// Catalog maps message IDs to translations.
type Catalog map[string]string

// T returns the translation of msg, or msg itself when none exists.
func (c Catalog) T(msg string) string {
	if tr, ok := c[msg]; ok && tr != "" {
		return tr
	}
	return msg
}

// Tf translates msg and formats it with args.
func (c Catalog) Tf(msg string, args ...any) string {
	return fmt.Sprintf(c.T(msg), args...)
}

// Source returns a Translator that leaves every string untouched.
func Source() Translator {
	return Catalog(nil)
}

type catalogFile struct {
	Messages []struct {
		ID          string `toml:"id"`
		Translation string `toml:"translation"`
	} `toml:"message"`
}

type domain struct {
	tags     []language.Tag
	catalogs []Catalog
}

// Registry holds loaded text domains. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	domains map[string]*domain
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{domains: make(map[string]*domain)}
}

// Load reads every <name>.<locale>.toml under dir in fsys and registers the
// catalogs under name. Loading the same domain again replaces it.
func (r *Registry) Load(name string, fsys fs.FS, dir string) error {
	matches, err := fs.Glob(fsys, path.Join(dir, name+".*.toml"))
	if err != nil {
		return fmt.Errorf("globbing catalogs: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s in %s", ErrNoCatalogs, name, dir)
	}

	d := &domain{}
	for _, file := range matches {
		locale := strings.TrimSuffix(strings.TrimPrefix(path.Base(file), name+"."), ".toml")
		tag, err := language.Parse(locale)
		if err != nil {
			return fmt.Errorf("catalog %s: invalid locale %q: %w", file, locale, err)
		}

		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return fmt.Errorf("reading catalog %s: %w", file, err)
		}
		var cf catalogFile
		if _, err := toml.Decode(string(data), &cf); err != nil {
			return fmt.Errorf("parsing catalog %s: %w", file, err)
		}

		cat := make(Catalog, len(cf.Messages))
		for _, m := range cf.Messages {
			cat[m.ID] = m.Translation
		}
		d.tags = append(d.tags, tag)
		d.catalogs = append(d.catalogs, cat)
	}

	r.mu.Lock()
	r.domains[name] = d
	r.mu.Unlock()
	return nil
}

// Loaded reports whether the domain has been loaded.
func (r *Registry) Loaded(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.domains[name]
	return ok
}

// Translator returns the catalog of name that best matches locale. Unknown
// domains and locales without a reasonable match get the source translator.
func (r *Registry) Translator(name, locale string) Translator {
	r.mu.RLock()
	d, ok := r.domains[name]
	r.mu.RUnlock()
	if !ok || len(d.tags) == 0 {
		return Source()
	}

	want, err := language.Parse(locale)
	if err != nil {
		return Source()
	}
	_, idx, conf := language.NewMatcher(d.tags).Match(want)
	if conf == language.No {
		return Source()
	}
	return d.catalogs[idx]
}
