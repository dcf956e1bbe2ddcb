// Package postgres implements the relay's durable store on PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/store"
	"github.com/samber/lo/mutable"
)

//go:embed schema.sql
var schema string

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// ErrDuplicate is returned when a generated id collides with an existing row.
var ErrDuplicate = errors.New("duplicate key")

type roomRow struct {
	ID        string    `db:"id"`
	Title     string    `db:"title"`
	IsGroup   bool      `db:"is_group"`
	CreatedBy string    `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
}

type messageRow struct {
	ID        string    `db:"id"`
	ChatID    string    `db:"chat_id"`
	SenderID  string    `db:"sender_id"`
	Text      string    `db:"text"`
	CreatedAt time.Time `db:"created_at"`
}

func (r messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:        r.ID,
		RoomID:    r.ChatID,
		SenderID:  r.SenderID,
		Text:      r.Text,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// Store is a store.Store backed by a pgx connection pool.
type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

var _ store.Store = (*Store)(nil)

// New wraps an existing pool. Every statement is bounded by timeout.
func New(pool *pgxpool.Pool, timeout time.Duration) *Store {
	return &Store{pool: pool, timeout: timeout}
}

// Open creates a pool for dsn, verifies it and applies the schema.
func Open(ctx context.Context, dsn string, timeout time.Duration) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	s := New(pool, timeout)
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, roomID, senderID, text string) (domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := domain.Message{
		ID:        store.NewID(),
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: store.Now(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, chat_id, sender_id, text, created_at) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.RoomID, msg.SenderID, msg.Text, msg.CreatedAt)
	if err != nil {
		return domain.Message{}, classify("append message", err)
	}
	return msg, nil
}

func (s *Store) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2)`,
		roomID, userID).Scan(&ok)
	if err != nil {
		return false, classify("check membership", err)
	}
	return ok, nil
}

func (s *Store) ListRoomsFor(ctx context.Context, userID string) ([]domain.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.title, c.is_group, c.created_by, c.created_at
		FROM chats c
		JOIN chat_members m ON m.chat_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.created_at DESC`, userID)
	if err != nil {
		return nil, classify("list rooms", err)
	}

	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[roomRow])
	if err != nil {
		return nil, classify("list rooms", err)
	}

	rooms := make([]domain.Room, 0, len(found))
	for _, r := range found {
		rooms = append(rooms, domain.Room{
			ID:        r.ID,
			Title:     r.Title,
			IsGroup:   r.IsGroup,
			CreatedBy: r.CreatedBy,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return rooms, nil
}

func (s *Store) CreateRoom(ctx context.Context, title string, isGroup bool, creatorID string) (domain.Room, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	room := domain.Room{
		ID:        store.NewID(),
		Title:     title,
		IsGroup:   isGroup,
		CreatedBy: creatorID,
		CreatedAt: store.Now(),
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO chats (id, title, is_group, created_by, created_at) VALUES ($1, $2, $3, $4, $5)`,
			room.ID, room.Title, room.IsGroup, room.CreatedBy, room.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO chat_members (chat_id, user_id, joined_at) VALUES ($1, $2, $3)`,
			room.ID, creatorID, room.CreatedAt)
		return err
	})
	if err != nil {
		return domain.Room{}, classify("create room", err)
	}
	return room, nil
}

func (s *Store) AddMember(ctx context.Context, roomID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roomID, userID)
	if isPgError(err, codeForeignKeyViolation) {
		return fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	if err != nil {
		return classify("add member", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, roomID string, q store.HistoryQuery) ([]domain.Message, error) {
	q = q.Normalize()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	if q.Before == "" {
		rows, err = s.pool.Query(ctx, `
			SELECT id, chat_id, sender_id, text, created_at FROM messages
			WHERE chat_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`, roomID, q.Limit)
	} else {
		var cursor time.Time
		err = s.pool.QueryRow(ctx,
			`SELECT created_at FROM messages WHERE chat_id = $1 AND id = $2`,
			roomID, q.Before).Scan(&cursor)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("cursor message %s: %w", q.Before, domain.ErrNotFound)
		}
		if err != nil {
			return nil, classify("find cursor", err)
		}
		rows, err = s.pool.Query(ctx, `
			SELECT id, chat_id, sender_id, text, created_at FROM messages
			WHERE chat_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4`, roomID, cursor, q.Before, q.Limit)
	}
	if err != nil {
		return nil, classify("list messages", err)
	}

	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[messageRow])
	if err != nil {
		return nil, classify("list messages", err)
	}

	history := make([]domain.Message, 0, len(found))
	for _, r := range found {
		history = append(history, r.toDomain())
	}
	mutable.Reverse(history)
	return history, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

func classify(op string, err error) error {
	if isPgError(err, codeUniqueViolation) {
		return fmt.Errorf("%s: %w: %w", op, ErrDuplicate, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
