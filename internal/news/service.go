package news

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Service keeps the news table fresh from the configured feeds.
type Service struct {
	db      *Database
	feeds   map[string]string
	refresh time.Duration

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a news service over a name-to-URL feed map.
func NewService(db *Database, feeds map[string]string, refresh time.Duration) *Service {
	if refresh <= 0 {
		refresh = 6 * time.Hour
	}
	return &Service{db: db, feeds: feeds, refresh: refresh}
}

// RefreshAll fetches every configured feed once. A failing feed is
// logged and skipped so one bad source cannot starve the rest.
func (s *Service) RefreshAll(ctx context.Context) {
	logger := log.With().Str("service", "news").Str("operation", "refresh").Logger()

	newItems := 0
	for _, source := range s.Sources() {
		items, err := FetchFeed(ctx, source, s.feeds[source])
		if err != nil {
			logger.Warn().Err(err).Str("source", source).Msg("feed fetch failed")
			continue
		}
		added, err := s.db.UpsertItems(items)
		if err != nil {
			logger.Error().Err(err).Str("source", source).Msg("failed to store feed items")
			continue
		}
		newItems += added
	}
	logger.Info().Int("new_items", newItems).Int("feeds", len(s.feeds)).Msg("news refresh complete")
}

// Start launches the refresh loop. The first refresh runs immediately.
func (s *Service) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(runCtx)
}

// Stop halts the refresh loop and waits for an in-flight refresh.
func (s *Service) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

func (s *Service) loop(ctx context.Context) {
	defer close(s.done)
	for {
		s.RefreshAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.refresh):
		}
	}
}

// List returns stored items, newest first.
func (s *Service) List(source string, limit int) ([]Item, error) {
	return s.db.ListItems(source, limit)
}

// Sources returns the configured feed names, sorted.
func (s *Service) Sources() []string {
	names := make([]string, 0, len(s.feeds))
	for name := range s.feeds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
