package signals

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/pmr_assist/backend/internal/models"
)

// CachedIncidentFeed keeps incident lookups for a short TTL so a sweep over
// many missions of the same passenger hits the feed once.
type CachedIncidentFeed struct {
	Feed IncidentFeed
	TTL  time.Duration

	c *ristretto.Cache[string, []models.Incident]
}

func NewCachedIncidentFeed(feed IncidentFeed, ttl time.Duration, maxEntries int64) (*CachedIncidentFeed, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []models.Incident]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,

		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &CachedIncidentFeed{Feed: feed, TTL: ttl, c: c}, nil
}

func (f *CachedIncidentFeed) ActiveIncidentsForUser(ctx context.Context, userID string) ([]models.Incident, error) {
	if cached, ok := f.c.Get(userID); ok {
		return cached, nil
	}
	incidents, err := f.Feed.ActiveIncidentsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	f.c.SetWithTTL(userID, incidents, 1, f.TTL)
	f.c.Wait()
	return incidents, nil
}

func (f *CachedIncidentFeed) Invalidate(userID string) {
	f.c.Del(userID)
}

func (f *CachedIncidentFeed) Close() {
	f.c.Close()
}
