package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/relaychat/relay-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	room         TEXT NOT NULL,
	sender       TEXT NOT NULL,
	body         TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'text',
	created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS message_reads (
	message_id INTEGER NOT NULL,
	reader     TEXT NOT NULL,
	read_at    DATETIME NOT NULL,
	PRIMARY KEY (message_id, reader)
);
`

// SQLiteStore implements store.MessageStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file; ":memory:" works for tests.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append persists a message and seeds its read set with the sender.
// The insert and the sender's read row commit in one transaction, so a
// stored message always has a non-empty read set.
func (s *SQLiteStore) Append(ctx context.Context, from, room, body string, contentType store.ContentType) (*store.Message, error) {
	if !contentType.Valid() {
		return nil, fmt.Errorf("invalid content type %q", contentType)
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (room, sender, body, content_type, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, room, from, body, string(contentType), now)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO message_reads (message_id, reader, read_at)
		VALUES (?, ?, ?)
	`, id, from, now); err != nil {
		return nil, fmt.Errorf("insert sender read: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit message: %w", err)
	}

	return &store.Message{
		ID:          id,
		Room:        room,
		From:        from,
		Body:        body,
		ContentType: contentType,
		CreatedAt:   now,
		ReadBy:      []string{from},
	}, nil
}

// History returns one newest-first page of a room's messages plus the
// total count. Repeated calls with the same page are side-effect free.
func (s *SQLiteStore) History(ctx context.Context, room string, page, pageSize int) ([]store.Message, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE room = ?
	`, room).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	offset := (page - 1) * pageSize
	msgs, err := s.queryMessages(ctx, `
		SELECT id, room, sender, body, content_type, created_at
		FROM messages
		WHERE room = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, room, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}

	return msgs, total, nil
}

// Recent returns up to limit of the room's latest messages, oldest first.
func (s *SQLiteStore) Recent(ctx context.Context, room string, limit int) ([]store.Message, error) {
	if limit < 1 {
		return []store.Message{}, nil
	}

	msgs, err := s.queryMessages(ctx, `
		SELECT id, room, sender, body, content_type, created_at
		FROM messages
		WHERE room = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, room, limit)
	if err != nil {
		return nil, err
	}

	// Flip newest-first selection into append order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, nil
}

// MarkRead adds reader to each message's read set. Unknown message IDs
// and already-present readers are skipped silently.
func (s *SQLiteStore) MarkRead(ctx context.Context, messageIDs []int64, reader string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO message_reads (message_id, reader, read_at)
		SELECT id, ?, ? FROM messages WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare mark read: %w", err)
	}
	defer stmt.Close()

	for _, id := range messageIDs {
		if _, err := stmt.ExecContext(ctx, reader, now, id); err != nil {
			return fmt.Errorf("mark message %d read: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark read: %w", err)
	}

	return nil
}

// ListRooms returns the distinct room names present in the message log.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT room FROM messages ORDER BY room
	`)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	rooms := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}

	return rooms, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	msgs := []store.Message{}
	for rows.Next() {
		var m store.Message
		var contentType string
		if err := rows.Scan(&m.ID, &m.Room, &m.From, &m.Body, &contentType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ContentType = store.ContentType(contentType)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if err := s.attachReads(ctx, msgs); err != nil {
		return nil, err
	}

	return msgs, nil
}

// attachReads fills each message's ReadBy set in one query.
func (s *SQLiteStore) attachReads(ctx context.Context, msgs []store.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	placeholders := make([]string, len(msgs))
	args := make([]any, len(msgs))
	byID := make(map[int64]int, len(msgs))
	for i := range msgs {
		placeholders[i] = "?"
		args[i] = msgs[i].ID
		byID[msgs[i].ID] = i
	}

	query := fmt.Sprintf(`
		SELECT message_id, reader
		FROM message_reads
		WHERE message_id IN (%s)
		ORDER BY read_at, reader
	`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query reads: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var reader string
		if err := rows.Scan(&id, &reader); err != nil {
			return fmt.Errorf("scan read: %w", err)
		}
		if i, ok := byID[id]; ok {
			msgs[i].ReadBy = append(msgs[i].ReadBy, reader)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate reads: %w", err)
	}

	return nil
}
