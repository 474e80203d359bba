package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tazhate/billbot/internal/domain"
)

// FileStore keeps reminders in a single JSON document that is rewritten in
// full on every mutation. The in-memory copy is authoritative; the file is
// replaced atomically so readers never observe a partial write.
type FileStore struct {
	path string
	log  zerolog.Logger
	now  func() time.Time

	mu        sync.Mutex
	lastID    int64
	reminders []domain.Reminder
}

type fileDocument struct {
	LastID    int64             `json:"last_id"`
	Reminders []domain.Reminder `json:"reminders"`
}

// OpenFile opens the JSON store at path. A missing, empty or malformed file
// yields an empty store which is written back in the current format.
func OpenFile(path string, log zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &FileStore{
		path: path,
		log:  log.With().Str("component", "file_store").Str("path", path).Logger(),
		now:  time.Now,
	}
	s.reload()
	return s, nil
}

func (s *FileStore) reload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := readDocument(s.path)
	switch {
	case err == nil:
		s.lastID = doc.LastID
		s.reminders = doc.Reminders
		s.log.Info().Int("reminders", len(s.reminders)).Int64("last_id", s.lastID).Msg("reminders loaded")
		return
	case errors.Is(err, fs.ErrNotExist):
		s.log.Info().Msg("reminder file missing, starting empty")
	default:
		s.log.Warn().Err(err).Msg("reminder file unreadable, starting empty")
		aside := s.path + ".corrupt"
		if rerr := os.Rename(s.path, aside); rerr != nil {
			s.log.Warn().Err(rerr).Msg("could not move corrupt file aside")
		} else {
			s.log.Warn().Str("moved_to", aside).Msg("corrupt reminder file kept for inspection")
		}
	}

	s.lastID = 0
	s.reminders = nil
	if err := s.persistLocked(fileDocument{}); err != nil {
		// Reads keep working from memory; the next write retries the file.
		s.log.Error().Err(err).Msg("initialize reminder file")
	}
}

func readDocument(path string) (fileDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileDocument{}, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return fileDocument{}, nil
	}

	var doc fileDocument
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		// Legacy layout: a bare array of records.
		if err := json.Unmarshal(data, &doc.Reminders); err != nil {
			return fileDocument{}, fmt.Errorf("decode reminders: %w", err)
		}
	} else if err := json.Unmarshal(data, &doc); err != nil {
		return fileDocument{}, fmt.Errorf("decode reminders: %w", err)
	}

	for _, r := range doc.Reminders {
		if !domain.ValidDueDay(r.DueDay) || r.ID <= 0 {
			return fileDocument{}, fmt.Errorf("decode reminders: bad record id=%d day=%d", r.ID, r.DueDay)
		}
		if r.ID > doc.LastID {
			doc.LastID = r.ID
		}
	}
	return doc, nil
}

func (s *FileStore) persistLocked(doc fileDocument) error {
	if doc.Reminders == nil {
		doc.Reminders = []domain.Reminder{}
	}
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encode reminders: %v", domain.ErrStorageUnavailable, err)
	}

	dir, base := filepath.Split(s.path)
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", domain.ErrStorageUnavailable, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write temp file: %v", domain.ErrStorageUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync temp file: %v", domain.ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close temp file: %v", domain.ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: replace reminder file: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

// Add validates and appends a reminder, persisting the whole collection.
func (s *FileStore) Add(recipient int64, dueDay int, text string) (*domain.Reminder, error) {
	text = strings.TrimSpace(text)
	if !domain.ValidDueDay(dueDay) {
		return nil, fmt.Errorf("%w: day must be between %d and %d", domain.ErrInvalidInput, domain.MinDueDay, domain.MaxDueDay)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: reminder text cannot be empty", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := domain.Reminder{
		ID:        s.lastID + 1,
		Recipient: recipient,
		DueDay:    dueDay,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}

	next := make([]domain.Reminder, 0, len(s.reminders)+1)
	next = append(next, s.reminders...)
	next = append(next, r)

	if err := s.persistLocked(fileDocument{LastID: r.ID, Reminders: next}); err != nil {
		return nil, err
	}
	s.lastID = r.ID
	s.reminders = next
	return &r, nil
}

// List returns the reminders of one recipient in insertion order.
func (s *FileStore) List(recipient int64) ([]*domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*domain.Reminder{}
	for i := range s.reminders {
		if s.reminders[i].Recipient == recipient {
			r := s.reminders[i]
			out = append(out, &r)
		}
	}
	return out, nil
}

// Remove deletes the reminder only when both id and recipient match.
// A false result with nil error means nothing matched.
func (s *FileStore) Remove(id, recipient int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.reminders {
		if s.reminders[i].ID == id && s.reminders[i].Recipient == recipient {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	next := make([]domain.Reminder, 0, len(s.reminders)-1)
	next = append(next, s.reminders[:idx]...)
	next = append(next, s.reminders[idx+1:]...)

	if err := s.persistLocked(fileDocument{LastID: s.lastID, Reminders: next}); err != nil {
		return false, err
	}
	s.reminders = next
	return true, nil
}

// LoadAll returns every stored reminder.
func (s *FileStore) LoadAll() ([]*domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Reminder, 0, len(s.reminders))
	for i := range s.reminders {
		r := s.reminders[i]
		out = append(out, &r)
	}
	return out, nil
}

func (s *FileStore) Close() error {
	return nil
}
