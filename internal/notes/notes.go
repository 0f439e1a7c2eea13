package notes

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"storefront/internal/kvstore"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

var ErrEmptyNote = errors.New("note text is empty")

// Service keeps a per-session list of shopping notes, newest first.
type Service struct {
	store  kvstore.Store
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	lastID int64
}

func NewService(store kvstore.Store) *Service {
	return &Service{
		store:  store,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// List returns the saved notes. A corrupt or missing list is empty.
func (s *Service) List(ctx context.Context) []models.Note {
	var notes []models.Note
	if !kvstore.GetJSON(ctx, s.store, kvstore.KeyNotes, &notes) {
		return []models.Note{}
	}
	return notes
}

// Add prepends a note with the trimmed text.
func (s *Service) Add(ctx context.Context, text string) (models.Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Note{}, ErrEmptyNote
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id

	note := models.Note{ID: id, Text: text, Date: now}
	notes := append([]models.Note{note}, s.List(ctx)...)
	if err := kvstore.SetJSON(ctx, s.store, kvstore.KeyNotes, notes); err != nil {
		return models.Note{}, err
	}

	s.logger.Debug("Note added", zap.Int64("note_id", id))
	return note, nil
}

// Delete removes the note with id. Unknown ids are a no-op.
func (s *Service) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes := s.List(ctx)
	kept := notes[:0]
	for _, n := range notes {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	if len(kept) == len(notes) {
		return nil
	}
	return kvstore.SetJSON(ctx, s.store, kvstore.KeyNotes, kept)
}
