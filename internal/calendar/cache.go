package calendar

import (
	"context"
	"sync"
	"time"

	gcal "google.golang.org/api/calendar/v3"
)

// ServiceCache memoizes the authenticated Calendar service for a short
// TTL so every availability query does not redo the credential
// handshake. Invalidate forces the next Get to rebuild, which the admin
// settings handler calls whenever the calendar configuration changes.
type ServiceCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	build     func(ctx context.Context) (*gcal.Service, error)
	svc       *gcal.Service
	fetchedAt time.Time
}

func NewServiceCache(ttl time.Duration, build func(ctx context.Context) (*gcal.Service, error)) *ServiceCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ServiceCache{
		ttl:   ttl,
		now:   time.Now,
		build: build,
	}
}

func (c *ServiceCache) Get(ctx context.Context) (*gcal.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.svc != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.svc, nil
	}

	svc, err := c.build(ctx)
	if err != nil {
		return nil, err
	}
	c.svc = svc
	c.fetchedAt = c.now()
	return svc, nil
}

func (c *ServiceCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.svc = nil
	c.fetchedAt = time.Time{}
}
