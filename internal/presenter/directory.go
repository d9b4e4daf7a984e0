package presenter

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/jwalitptl/booking-feed/internal/model"
	"github.com/jwalitptl/booking-feed/internal/repository"
)

// CustomerDirectory resolves customer identities with a TTL cache in front
// of the backend. Concurrent misses for one id share a single lookup.
type CustomerDirectory struct {
	repo  repository.CustomerRepository
	cache *cache.Cache
	group singleflight.Group
}

func NewCustomerDirectory(repo repository.CustomerRepository, ttl, cleanup time.Duration) *CustomerDirectory {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if cleanup <= 0 {
		cleanup = 2 * ttl
	}
	return &CustomerDirectory{
		repo:  repo,
		cache: cache.New(ttl, cleanup),
	}
}

func (d *CustomerDirectory) Lookup(ctx context.Context, id string) (*model.Customer, error) {
	if cached, found := d.cache.Get(id); found {
		return cached.(*model.Customer), nil
	}

	v, err, _ := d.group.Do(id, func() (interface{}, error) {
		customer, err := d.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		d.cache.Set(id, customer, cache.DefaultExpiration)
		return customer, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Customer), nil
}

func (d *CustomerDirectory) Invalidate(id string) {
	d.cache.Delete(id)
}
