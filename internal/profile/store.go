package profile

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"attune/internal/safeio"
)

//go:embed profiles/*.yaml
var builtinFS embed.FS

const builtinDir = "profiles"

// Store resolves profile ids to compiled profiles.
type Store interface {
	// Get returns the compiled profile for id, or an error wrapping
	// ErrNotFound when no such profile exists.
	Get(ctx context.Context, id string) (*Compiled, error)
	// List returns every available profile, sorted by id.
	List(ctx context.Context) ([]*Profile, error)
}

// CatalogStore serves the embedded profile catalog, optionally shadowed
// by a directory of override YAML files. Compiled profiles are cached.
type CatalogStore struct {
	override *safeio.Dir
	log      *zap.Logger
	cache    *lru.Cache[string, *Compiled]
}

// NewCatalogStore builds a store. dir may be empty to serve only the
// embedded catalog; a file <dir>/<id>.yaml shadows the embedded profile
// with the same id. Profile ids can arrive straight from requests, so
// override reads go through a directory jail.
func NewCatalogStore(dir string, log *zap.Logger) (*CatalogStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var override *safeio.Dir
	if dir != "" {
		jail, err := safeio.NewDir(dir)
		if err != nil {
			return nil, fmt.Errorf("profile override dir: %w", err)
		}
		override = jail
	}
	cache, err := lru.New[string, *Compiled](128)
	if err != nil {
		return nil, err
	}
	return &CatalogStore{override: override, log: log, cache: cache}, nil
}

func (s *CatalogStore) Get(ctx context.Context, id string) (*Compiled, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("empty profile id: %w", ErrNotFound)
	}
	if hit, ok := s.cache.Get(id); ok {
		return hit, nil
	}

	raw, err := s.read(id)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("profile %q: parse: %w", id, err)
	}
	if p.ID != id {
		return nil, fmt.Errorf("profile file %q declares id %q", id, p.ID)
	}
	compiled, err := Compile(&p)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, compiled)
	s.log.Debug("profile loaded",
		zap.String("profile", id),
		zap.Int("patterns", patternCount(p.Patterns)))
	return compiled, nil
}

func (s *CatalogStore) List(ctx context.Context) ([]*Profile, error) {
	ids := map[string]struct{}{}
	entries, err := builtinFS.ReadDir(builtinDir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		ids[strings.TrimSuffix(e.Name(), ".yaml")] = struct{}{}
	}
	if s.override != nil {
		files, err := s.override.ReadDir(".")
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".yaml") {
				continue
			}
			ids[strings.TrimSuffix(f.Name(), ".yaml")] = struct{}{}
		}
	}

	out := make([]*Profile, 0, len(ids))
	for id := range ids {
		c, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c.Profile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// read prefers the override directory and falls back to the embedded
// catalog. Jail violations surface as errors rather than falling back,
// so a hostile id never reads anything at all.
func (s *CatalogStore) read(id string) ([]byte, error) {
	if s.override != nil {
		raw, err := s.override.ReadFile(id + ".yaml")
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("profile %q: %w", id, err)
		}
	}
	raw, err := builtinFS.ReadFile(builtinDir + "/" + id + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", id, ErrNotFound)
	}
	return raw, nil
}

func patternCount(sets map[string][]string) int {
	n := 0
	for _, set := range sets {
		n += len(set)
	}
	return n
}
