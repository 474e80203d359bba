package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tazhate/billbot/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// Storage is the SQLite backend. It stores reminders (when the sqlite driver
// is selected) and the durable fire records of the scheduler.
type Storage struct {
	db  *sql.DB
	log zerolog.Logger
}

// New opens the database at dbPath. A file that SQLite refuses to open is
// moved aside and a fresh database is created in its place.
func New(dbPath string, log zerolog.Logger) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	log = log.With().Str("component", "sqlite").Str("path", dbPath).Logger()

	s, err := open(dbPath, log)
	if err == nil {
		return s, nil
	}
	if _, statErr := os.Stat(dbPath); statErr != nil {
		return nil, err
	}

	aside := dbPath + ".corrupt"
	log.Warn().Err(err).Str("moved_to", aside).Msg("database unusable, recreating")
	if rerr := os.Rename(dbPath, aside); rerr != nil {
		return nil, fmt.Errorf("move corrupt db: %w", rerr)
	}
	return open(dbPath, log)
}

func open(dbPath string, log zerolog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer keeps load-modify-persist sequences serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL,
			day INTEGER NOT NULL CHECK (day BETWEEN 1 AND 31),
			text TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_chat_id ON reminders(chat_id)`,
		`CREATE TABLE IF NOT EXISTS fire_records (
			reminder_id INTEGER NOT NULL,
			offset_days INTEGER NOT NULL,
			period TEXT NOT NULL,
			fired_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (reminder_id, offset_days, period)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fire_records_period ON fire_records(period)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// === Reminders ===

func (s *Storage) Add(recipient int64, dueDay int, text string) (*domain.Reminder, error) {
	text = strings.TrimSpace(text)
	if !domain.ValidDueDay(dueDay) {
		return nil, fmt.Errorf("%w: day must be between %d and %d", domain.ErrInvalidInput, domain.MinDueDay, domain.MaxDueDay)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: reminder text cannot be empty", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO reminders (chat_id, day, text, created_at) VALUES (?, ?, ?, ?)`,
		recipient, dueDay, text, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert reminder: %v", domain.ErrStorageUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: reminder id: %v", domain.ErrStorageUnavailable, err)
	}

	return &domain.Reminder{
		ID:        id,
		Recipient: recipient,
		DueDay:    dueDay,
		Text:      text,
		CreatedAt: now,
	}, nil
}

func (s *Storage) List(recipient int64) ([]*domain.Reminder, error) {
	rows, err := s.db.Query(
		`SELECT id, chat_id, day, text, created_at FROM reminders WHERE chat_id = ? ORDER BY id`,
		recipient,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list reminders: %v", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (s *Storage) Remove(id, recipient int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM reminders WHERE id = ? AND chat_id = ?`, id, recipient)
	if err != nil {
		return false, fmt.Errorf("%w: delete reminder: %v", domain.ErrStorageUnavailable, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Storage) LoadAll() ([]*domain.Reminder, error) {
	rows, err := s.db.Query(`SELECT id, chat_id, day, text, created_at FROM reminders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: load reminders: %v", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func scanReminders(rows *sql.Rows) ([]*domain.Reminder, error) {
	reminders := []*domain.Reminder{}
	for rows.Next() {
		r := &domain.Reminder{}
		if err := rows.Scan(&r.ID, &r.Recipient, &r.DueDay, &r.Text, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan reminder: %v", domain.ErrStorageUnavailable, err)
		}
		reminders = append(reminders, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate reminders: %v", domain.ErrStorageUnavailable, err)
	}
	return reminders, nil
}

// === Fire records ===

func (s *Storage) HasFired(key domain.FireKey) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM fire_records WHERE reminder_id = ? AND offset_days = ? AND period = ?`,
		key.ReminderID, key.Offset, key.Period.String(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query fire record: %w", err)
	}
	return true, nil
}

func (s *Storage) MarkFired(key domain.FireKey) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO fire_records (reminder_id, offset_days, period, fired_at) VALUES (?, ?, ?, ?)`,
		key.ReminderID, key.Offset, key.Period.String(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert fire record: %w", err)
	}
	return nil
}

func (s *Storage) Forget(reminderID int64) error {
	if _, err := s.db.Exec(`DELETE FROM fire_records WHERE reminder_id = ?`, reminderID); err != nil {
		return fmt.Errorf("delete fire records: %w", err)
	}
	return nil
}

// Compact drops fire records of periods strictly before the given one.
// "YYYY-MM" strings sort chronologically.
func (s *Storage) Compact(before domain.Period) (int, error) {
	res, err := s.db.Exec(`DELETE FROM fire_records WHERE period < ?`, before.String())
	if err != nil {
		return 0, fmt.Errorf("compact fire records: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PruneExcept drops fire records of every reminder not in keep. Called at
// startup with the live reminder ids, so ids reissued by a reset store start
// with no fire records.
func (s *Storage) PruneExcept(keep []int64) (int, error) {
	query := `DELETE FROM fire_records`
	args := make([]any, 0, len(keep))
	if len(keep) > 0 {
		query += ` WHERE reminder_id NOT IN (?` + strings.Repeat(`, ?`, len(keep)-1) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune fire records: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
