package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Vasu1712/scenyx-live/internal/models"
	"github.com/Vasu1712/scenyx-live/internal/storage"
)

// ConcertStore keeps concerts in memory.
type ConcertStore struct {
	mu        sync.RWMutex               // guards concerts and hostIndex
	concerts  map[string]*models.Concert // concertID -> concert
	hostIndex map[string][]string        // hostID -> []concertID
	now       func() time.Time
}

// NewConcertStore creates an empty ConcertStore.
func NewConcertStore() *ConcertStore {
	return &ConcertStore{
		concerts:  make(map[string]*models.Concert),
		hostIndex: make(map[string][]string),
		now:       time.Now,
	}
}

// CreateConcert stores a new concert with a fresh id. Setlist positions are
// renumbered from 1 in the given order.
func (s *ConcertStore) CreateConcert(_ context.Context, in storage.NewConcert) (*models.Concert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	concert := &models.Concert{
		ID:              uuid.NewString(),
		Title:           in.Title,
		Description:     in.Description,
		HostID:          in.HostID,
		HostDisplayName: in.HostDisplayName,
		Setlist:         numberSetlist(in.Setlist),
		CreatedAt:       s.now().UTC(),
	}
	s.concerts[concert.ID] = concert
	s.hostIndex[in.HostID] = append(s.hostIndex[in.HostID], concert.ID)

	slog.Info("memory: concert created", "concert_id", concert.ID, "title", concert.Title, "host_id", concert.HostID)
	return cloneConcert(concert), nil
}

// GetConcert returns the concert or storage.ErrNotFound.
func (s *ConcertStore) GetConcert(_ context.Context, id string) (*models.Concert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	concert, ok := s.concerts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneConcert(concert), nil
}

// ListConcerts returns up to limit concerts, newest first. limit <= 0 means all.
func (s *ConcertStore) ListConcerts(_ context.Context, limit int) ([]*models.Concert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Concert, 0, len(s.concerts))
	for _, c := range s.concerts {
		out = append(out, cloneConcert(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ConcertsForHost returns every concert created by hostID, oldest first.
func (s *ConcertStore) ConcertsForHost(hostID string) []*models.Concert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Concert
	for _, id := range s.hostIndex[hostID] {
		if c, ok := s.concerts[id]; ok {
			out = append(out, cloneConcert(c))
		}
	}
	return out
}

func (s *ConcertStore) Close() error { return nil }

func numberSetlist(in []models.SetlistEntry) []models.SetlistEntry {
	out := make([]models.SetlistEntry, len(in))
	for i, e := range in {
		e.Position = i + 1
		out[i] = e
	}
	return out
}

// cloneConcert copies c so callers never share the stored setlist.
func cloneConcert(c *models.Concert) *models.Concert {
	cp := *c
	cp.Setlist = append([]models.SetlistEntry(nil), c.Setlist...)
	if cp.Setlist == nil {
		cp.Setlist = []models.SetlistEntry{}
	}
	return &cp
}
