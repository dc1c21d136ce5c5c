package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"floorbot/internal/domain"
)

const defaultListLimit = 50

// SQLiteStore implements domain.AdminStore on a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteStore(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger, now: time.Now}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// SchemaVersion reports the applied migration level.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	return GetSchemaVersion(ctx, s.db)
}

// Snapshot writes a consistent copy of the live database to dest, which
// must not exist yet.
func (s *SQLiteStore) Snapshot(ctx context.Context, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("snapshot target %s already exists", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("cannot create snapshot directory: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("snapshot database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertConversation(ctx context.Context, phone string, p domain.ConversationPatch) (*domain.Conversation, error) {
	now := s.now().UTC()
	status := p.Status
	if status == "" {
		status = domain.ConversationActive
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	last := p.LastMessageAt.UTC()
	if p.LastMessageAt.IsZero() {
		last = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (phone, name, status, last_message_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			name = CASE WHEN conversations.name = '' THEN excluded.name ELSE conversations.name END,
			status = CASE WHEN ? THEN excluded.status ELSE conversations.status END,
			last_message_at = CASE WHEN ? THEN excluded.last_message_at ELSE conversations.last_message_at END,
			updated_at = excluded.updated_at`,
		phone, p.Name, string(status), last, now, now,
		p.Status != "", !p.LastMessageAt.IsZero(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert conversation: %w", err)
	}
	return s.GetConversation(ctx, phone)
}

func (s *SQLiteStore) GetConversation(ctx context.Context, phone string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT phone, name, status, last_message_at, created_at, updated_at FROM conversations WHERE phone = ?`, phone,
	).Scan(&c.Phone, &c.Name, &c.Status, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phone, name, status, last_message_at, created_at, updated_at
		 FROM conversations ORDER BY last_message_at DESC, phone LIMIT ?`, listLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.Phone, &c.Name, &c.Status, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetState(ctx context.Context, phone string) (*domain.ConversationState, error) {
	var (
		st   domain.ConversationState
		data string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT step, data, updated_at FROM conversation_states WHERE phone = ?`, phone,
	).Scan(&st.Step, &data, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &st.Data); err != nil {
		return nil, fmt.Errorf("decode state data: %w", err)
	}
	return &st, nil
}

func (s *SQLiteStore) PutState(ctx context.Context, phone string, st domain.ConversationState) error {
	data, err := json.Marshal(st.Data)
	if err != nil {
		return fmt.Errorf("encode state data: %w", err)
	}
	updated := st.UpdatedAt.UTC()
	if st.UpdatedAt.IsZero() {
		updated = s.now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_states (phone, step, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET step = excluded.step, data = excluded.data, updated_at = excluded.updated_at`,
		phone, string(st.Step), string(data), updated,
	)
	if err != nil {
		return fmt.Errorf("put state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, phone string, m domain.Message) error {
	created := m.CreatedAt.UTC()
	if m.CreatedAt.IsZero() {
		created = s.now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages
			(phone, provider_message_id, direction, type, content, media_id, media_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		phone, m.ProviderID, string(m.Direction), m.Type, m.Content, m.MediaID, m.MediaType, created,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 && m.ProviderID != "" {
		return domain.ErrDuplicateMessage
	}
	return nil
}

// ListMessages returns the latest messages of a conversation, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, phone string, limit int) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phone, provider_message_id, direction, type, content, media_id, media_type, created_at
		FROM (
			SELECT * FROM messages WHERE phone = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, phone, listLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.Phone, &m.ProviderID, &m.Direction, &m.Type,
			&m.Content, &m.MediaID, &m.MediaType, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateQuote(ctx context.Context, q domain.Quote) error {
	if q.ID == "" {
		return errors.New("quote id is required")
	}
	if q.Status == "" {
		q.Status = domain.QuotePending
	}
	photos, err := json.Marshal(nonNil(q.Photos))
	if err != nil {
		return fmt.Errorf("encode photos: %w", err)
	}
	now := s.now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	if q.UpdatedAt.IsZero() {
		q.UpdatedAt = q.CreatedAt
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO quotes
			(id, name, email, phone, description, project_type, room_size, timeline, budget, photos, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		q.ID, q.Name, q.Email, q.Phone, q.Description, string(q.ProjectType), q.RoomSize, string(q.Timeline), string(q.Budget),
		string(photos), string(q.Status), q.CreatedAt.UTC(), q.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create quote: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("create quote %s: %w", q.ID, domain.ErrDuplicateQuote)
	}
	return nil
}

const quoteColumns = `id, name, email, phone, description, project_type, room_size, timeline, budget, photos, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuote(r rowScanner) (*domain.Quote, error) {
	var (
		q      domain.Quote
		photos string
	)
	if err := r.Scan(&q.ID, &q.Name, &q.Email, &q.Phone, &q.Description, &q.ProjectType, &q.RoomSize,
		&q.Timeline, &q.Budget, &photos, &q.Status, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(photos), &q.Photos); err != nil {
		return nil, fmt.Errorf("decode photos of quote %s: %w", q.ID, err)
	}
	return &q, nil
}

func (s *SQLiteStore) GetQuote(ctx context.Context, id string) (*domain.Quote, error) {
	q, err := scanQuote(s.db.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	return q, nil
}

// ListQuotes returns quotes newest first.
func (s *SQLiteStore) ListQuotes(ctx context.Context, f domain.QuoteFilter) ([]domain.Quote, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	query := `SELECT ` + quoteColumns + ` FROM quotes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, listLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	var out []domain.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateQuoteStatus(ctx context.Context, id string, status domain.QuoteStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE quotes SET status = ?, updated_at = ? WHERE id = ?`, string(status), s.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update quote status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*domain.Stats, error) {
	st := &domain.Stats{
		ConversationsByStatus: map[domain.ConversationStatus]int{},
		QuotesByStatus:        map[domain.QuoteStatus]int{},
		QuotesByProjectType:   map[domain.ProjectType]int{},
	}
	if err := s.countBy(ctx, `SELECT status, COUNT(*) FROM conversations GROUP BY status`, func(k string, n int) {
		st.ConversationsByStatus[domain.ConversationStatus(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, `SELECT status, COUNT(*) FROM quotes GROUP BY status`, func(k string, n int) {
		st.QuotesByStatus[domain.QuoteStatus(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, `SELECT project_type, COUNT(*) FROM quotes GROUP BY project_type`, func(k string, n int) {
		st.QuotesByProjectType[domain.ProjectType(k)] = n
	}); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) countBy(ctx context.Context, query string, add func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			k string
			n int
		)
		if err := rows.Scan(&k, &n); err != nil {
			return err
		}
		add(k, n)
	}
	return rows.Err()
}

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
