package settings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raspaplay/wallet-api/internal/domain"
)

// Provider hands out the current platform settings. Implementations decide
// the staleness policy; callers read per-operation and never hold on to the
// returned value across requests.
type Provider interface {
	Get(ctx context.Context) (*domain.Settings, error)
}

type repo interface {
	Get(ctx context.Context) (*domain.Settings, error)
}

// CachedProvider serves settings from the database through a TTL cache.
// A rate change becomes visible to every operation within at most ttl;
// there is no versioning, in-flight operations pick up whatever is current.
type CachedProvider struct {
	repo repo
	ttl  time.Duration

	mu        sync.Mutex
	cached    *domain.Settings
	fetchedAt time.Time
}

func NewCachedProvider(repo repo, ttl time.Duration) *CachedProvider {
	return &CachedProvider{repo: repo, ttl: ttl}
}

func (p *CachedProvider) Get(ctx context.Context) (*domain.Settings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && time.Since(p.fetchedAt) < p.ttl {
		return p.cached, nil
	}

	s, err := p.repo.Get(ctx)
	if err != nil {
		// Serve the stale copy over failing the operation outright.
		if p.cached != nil {
			return p.cached, nil
		}
		return nil, fmt.Errorf("settings.Get: %w", err)
	}

	p.cached = s
	p.fetchedAt = time.Now()
	return s, nil
}

// Invalidate forces the next Get to hit the database; the admin settings
// update path calls this so changes apply without waiting out the TTL.
func (p *CachedProvider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// Static returns a fixed-value provider, used in tests.
func Static(s *domain.Settings) Provider {
	return staticProvider{s: s}
}

type staticProvider struct {
	s *domain.Settings
}

func (p staticProvider) Get(ctx context.Context) (*domain.Settings, error) {
	return p.s, nil
}
