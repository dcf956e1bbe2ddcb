// Package database implements the relay's durable store on SurrealDB.
package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/nfrund/chatrelay/internal/config"
	"github.com/nfrund/chatrelay/internal/domain"
	"github.com/nfrund/chatrelay/internal/store"
	"github.com/samber/lo"
	"github.com/samber/lo/mutable"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

//go:embed schema.surql
var schema string

const (
	roomFields    = "room_id, title, is_group, created_by, created_at"
	messageFields = "msg_id, chat_id, sender_id, text, created_at"
)

type roomRow struct {
	RoomID    string                       `json:"room_id"`
	Title     string                       `json:"title"`
	IsGroup   bool                         `json:"is_group"`
	CreatedBy string                       `json:"created_by"`
	CreatedAt surrealmodels.CustomDateTime `json:"created_at"`
}

func (r roomRow) toDomain() domain.Room {
	return domain.Room{
		ID:        r.RoomID,
		Title:     r.Title,
		IsGroup:   r.IsGroup,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt.Time.UTC(),
	}
}

type messageRow struct {
	MsgID     string                       `json:"msg_id"`
	ChatID    string                       `json:"chat_id"`
	SenderID  string                       `json:"sender_id"`
	Text      string                       `json:"text"`
	CreatedAt surrealmodels.CustomDateTime `json:"created_at"`
}

func (r messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:        r.MsgID,
		RoomID:    r.ChatID,
		SenderID:  r.SenderID,
		Text:      r.Text,
		CreatedAt: r.CreatedAt.Time.UTC(),
	}
}

type countRow struct {
	N int `json:"n"`
}

// SurrealStore is a store.Store backed by SurrealDB tables chat,
// chat_member and message.
type SurrealStore struct {
	conn           *Connection
	queryTimeout   time.Duration
	executeTimeout time.Duration
}

var _ store.Store = (*SurrealStore)(nil)

// NewSurrealStore wraps an established connection.
func NewSurrealStore(conn *Connection, cfg config.Provider) *SurrealStore {
	return &SurrealStore{
		conn:           conn,
		queryTimeout:   cfg.GetDBQueryTimeout(),
		executeTimeout: cfg.GetDBExecuteTimeout(),
	}
}

// Open connects to SurrealDB, applies the schema and starts connection
// monitoring.
func Open(ctx context.Context, cfg config.Provider) (*SurrealStore, error) {
	conn := NewConnection(cfg)
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	s := NewSurrealStore(conn, cfg)
	if err := s.Migrate(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	conn.StartMonitoring()
	return s, nil
}

// Migrate defines the tables and indexes. It is safe to run repeatedly.
func (s *SurrealStore) Migrate(ctx context.Context) error {
	return s.exec(ctx, "apply schema", schema, nil)
}

func (s *SurrealStore) AppendMessage(ctx context.Context, roomID, senderID, text string) (domain.Message, error) {
	msg := domain.Message{
		ID:        store.NewID(),
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: store.Now(),
	}

	q := `CREATE message CONTENT {
		msg_id: $id, chat_id: $chat, sender_id: $sender, text: $text, created_at: $at
	}`
	err := s.exec(ctx, "append message", q, map[string]any{
		"id":     msg.ID,
		"chat":   roomID,
		"sender": senderID,
		"text":   text,
		"at":     surrealmodels.CustomDateTime{Time: msg.CreatedAt},
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (s *SurrealStore) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	row, err := queryOne[countRow](ctx, s, "check membership",
		"SELECT count() AS n FROM chat_member WHERE chat_id = $chat AND user_id = $user GROUP ALL",
		map[string]any{"chat": roomID, "user": userID})
	if err != nil {
		return false, err
	}
	return row != nil && row.N > 0, nil
}

func (s *SurrealStore) ListRoomsFor(ctx context.Context, userID string) ([]domain.Room, error) {
	q := "SELECT " + roomFields + ` FROM chat
		WHERE room_id IN (SELECT VALUE chat_id FROM chat_member WHERE user_id = $user)
		ORDER BY created_at DESC`
	rows, err := query[roomRow](ctx, s, "list rooms", q, map[string]any{"user": userID})
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r roomRow, _ int) domain.Room { return r.toDomain() }), nil
}

func (s *SurrealStore) CreateRoom(ctx context.Context, title string, isGroup bool, creatorID string) (domain.Room, error) {
	room := domain.Room{
		ID:        store.NewID(),
		Title:     title,
		IsGroup:   isGroup,
		CreatedBy: creatorID,
		CreatedAt: store.Now(),
	}

	q := `BEGIN TRANSACTION;
		CREATE chat CONTENT { room_id: $chat, title: $title, is_group: $group, created_by: $user, created_at: $at };
		UPSERT type::thing("chat_member", [$chat, $user]) CONTENT { chat_id: $chat, user_id: $user, joined_at: $at };
		COMMIT TRANSACTION;`
	err := s.exec(ctx, "create room", q, map[string]any{
		"chat":  room.ID,
		"title": title,
		"group": isGroup,
		"user":  creatorID,
		"at":    surrealmodels.CustomDateTime{Time: room.CreatedAt},
	})
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (s *SurrealStore) AddMember(ctx context.Context, roomID, userID string) error {
	row, err := queryOne[countRow](ctx, s, "find room",
		"SELECT count() AS n FROM chat WHERE room_id = $chat GROUP ALL",
		map[string]any{"chat": roomID})
	if err != nil {
		return err
	}
	if row == nil || row.N == 0 {
		return fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}

	return s.exec(ctx, "add member",
		`UPSERT type::thing("chat_member", [$chat, $user]) MERGE { chat_id: $chat, user_id: $user }`,
		map[string]any{"chat": roomID, "user": userID})
}

func (s *SurrealStore) ListMessages(ctx context.Context, roomID string, q store.HistoryQuery) ([]domain.Message, error) {
	q = q.Normalize()
	params := map[string]any{"chat": roomID, "limit": q.Limit}

	where := "chat_id = $chat"
	if q.Before != "" {
		cursor, err := queryOne[messageRow](ctx, s, "find cursor",
			"SELECT "+messageFields+" FROM message WHERE chat_id = $chat AND msg_id = $id",
			map[string]any{"chat": roomID, "id": q.Before})
		if err != nil {
			return nil, err
		}
		if cursor == nil {
			return nil, fmt.Errorf("cursor message %s: %w", q.Before, domain.ErrNotFound)
		}
		where += " AND (created_at < $at OR (created_at = $at AND msg_id < $id))"
		params["at"] = cursor.CreatedAt
		params["id"] = cursor.MsgID
	}

	rows, err := query[messageRow](ctx, s, "list messages",
		"SELECT "+messageFields+" FROM message WHERE "+where+" ORDER BY created_at DESC, msg_id DESC LIMIT $limit",
		params)
	if err != nil {
		return nil, err
	}

	history := lo.Map(rows, func(r messageRow, _ int) domain.Message { return r.toDomain() })
	mutable.Reverse(history)
	return history, nil
}

func (s *SurrealStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.queryTimeout, ContextKeyQueryTimeout)
	defer cancel()
	return s.conn.Ping(ctx)
}

func (s *SurrealStore) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

func (s *SurrealStore) exec(ctx context.Context, op, q string, params map[string]any) error {
	ctx, cancel := withTimeout(ctx, s.executeTimeout, ContextKeyExecuteTimeout)
	defer cancel()

	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		return Execute(ctx, db, q, params)
	})
	return WrapError(err, op)
}

func query[T any](ctx context.Context, s *SurrealStore, op, q string, params map[string]any) ([]T, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout, ContextKeyQueryTimeout)
	defer cancel()

	var rows []T
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		rows, err = Query[T](ctx, db, q, params)
		return err
	})
	return rows, WrapError(err, op)
}

func queryOne[T any](ctx context.Context, s *SurrealStore, op, q string, params map[string]any) (*T, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout, ContextKeyQueryTimeout)
	defer cancel()

	var row *T
	err := s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		row, err = QueryOne[T](ctx, db, q, params)
		return err
	})
	return row, WrapError(err, op)
}
