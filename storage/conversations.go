package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hotelbot/bot"

	"github.com/jmoiron/sqlx"
)

// Conversations persists dialog state in the conversations table, keyed
// by phone number.
type Conversations struct {
	db *sqlx.DB
}

func NewConversations(db *sqlx.DB) *Conversations {
	return &Conversations{db: db}
}

type conversationRow struct {
	PhoneNumber  string         `db:"phone_number"`
	CurrentState string         `db:"current_state"`
	Context      sql.NullString `db:"context"`
	LastActivity sql.NullTime   `db:"last_activity"`
}

// Get returns the conversation for phone, or (nil, nil) when absent.
func (c *Conversations) Get(ctx context.Context, phone string) (*bot.Conversation, error) {
	var row conversationRow
	err := c.db.GetContext(ctx, &row,
		`SELECT phone_number, current_state, context, last_activity
		 FROM conversations
		 WHERE phone_number = $1`, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return row.toDomain(), nil
}

// Create inserts a fresh conversation in the welcome state. A concurrent
// insert for the same phone is tolerated; the stored row wins.
func (c *Conversations) Create(ctx context.Context, phone string) (*bot.Conversation, error) {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO conversations (phone_number, current_state, context, last_activity)
		 VALUES ($1, $2, '{}', NOW())
		 ON CONFLICT (phone_number) DO NOTHING`, phone, string(bot.StateWelcome))
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	conv, err := c.Get(ctx, phone)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("create conversation: row missing after insert for %s", phone)
	}
	return conv, nil
}

// Update stores the new state and context and bumps last_activity.
func (c *Conversations) Update(ctx context.Context, phone string, state bot.State, contextJSON []byte) error {
	if len(contextJSON) == 0 {
		contextJSON = []byte("{}")
	}
	res, err := c.db.ExecContext(ctx,
		`UPDATE conversations
		 SET current_state = $2, context = $3, last_activity = NOW()
		 WHERE phone_number = $1`, phone, string(state), string(contextJSON))
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update conversation: no row for %s", phone)
	}
	return nil
}

func (r conversationRow) toDomain() *bot.Conversation {
	conv := &bot.Conversation{
		PhoneNumber:  r.PhoneNumber,
		CurrentState: bot.State(r.CurrentState),
	}
	if r.Context.Valid {
		conv.Context = []byte(r.Context.String)
	}
	if r.LastActivity.Valid {
		conv.LastActivity = r.LastActivity.Time
	}
	return conv
}
