package registry

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"gate-service/internal/domain/anpr"
	"gate-service/internal/utils"
)

// Source provides the ordered list of registered owners.
type Source interface {
	Owners(ctx context.Context) ([]anpr.Owner, error)
}

// Store is a Source that also accepts registrations.
type Store interface {
	Source
	Register(ctx context.Context, owner anpr.Owner) error
}

const ownersKey = "owners"

// Matcher resolves plate strings to registered owners.
type Matcher struct {
	source Source
	cache  *cache.Cache
	log    zerolog.Logger
}

// NewMatcher returns a matcher reading from source. A positive ttl caches the
// owner list for that long; zero reads the source on every lookup.
func NewMatcher(source Source, ttl time.Duration, log zerolog.Logger) *Matcher {
	m := &Matcher{
		source: source,
		log:    log.With().Str("component", "registry").Logger(),
	}
	if ttl > 0 {
		m.cache = cache.New(ttl, 2*ttl)
	}
	return m
}

// Lookup returns the first owner whose plate equals plate ignoring case and
// whitespace, or nil. Registry failures are logged and yield nil.
func (m *Matcher) Lookup(ctx context.Context, plate string) *anpr.Owner {
	want := utils.NormalizePlate(plate)
	if want == "" {
		return nil
	}
	owners, err := m.owners(ctx)
	if err != nil {
		m.log.Warn().Err(err).Str("plate", want).Msg("registry unavailable, treating as empty")
		return nil
	}
	for i := range owners {
		if utils.NormalizePlate(owners[i].Plate) == want {
			owner := owners[i]
			return &owner
		}
	}
	return nil
}

// Invalidate drops the cached owner list so the next lookup reads the source.
func (m *Matcher) Invalidate() {
	if m.cache != nil {
		m.cache.Flush()
	}
}

func (m *Matcher) owners(ctx context.Context) ([]anpr.Owner, error) {
	if m.cache != nil {
		if cached, ok := m.cache.Get(ownersKey); ok {
			return cached.([]anpr.Owner), nil
		}
	}
	owners, err := m.source.Owners(ctx)
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		m.cache.Set(ownersKey, owners, cache.DefaultExpiration)
	}
	return owners, nil
}
