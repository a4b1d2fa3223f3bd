package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/crewmind/crewmind/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	metadata, err := marshalMetadata(create.Metadata)
	if err != nil {
		return nil, err
	}
	stmt := `
		INSERT INTO message (conversation_uid, role, content, created_ts, metadata)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := d.db.ExecContext(ctx, stmt,
		create.ConversationUID, create.Role, create.Content, create.CreatedTs, metadata,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create message")
	}
	if create.ID, err = result.LastInsertId(); err != nil {
		return nil, errors.Wrap(err, "failed to read message id")
	}
	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	query := `
		SELECT id, conversation_uid, role, content, created_ts, metadata
		FROM message
		WHERE conversation_uid = ?
		ORDER BY created_ts DESC, id DESC
	`
	args := []any{find.ConversationUID}
	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
		if find.Skip > 0 {
			query += " OFFSET ?"
			args = append(args, find.Skip)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	var list []*store.Message
	for rows.Next() {
		var (
			msg      store.Message
			metadata string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationUID, &msg.Role, &msg.Content, &msg.CreatedTs, &metadata); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		if msg.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return nil, err
		}
		list = append(list, &msg)
	}
	return list, rows.Err()
}

func (d *DB) DeleteMessages(ctx context.Context, conversationUID string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM message WHERE conversation_uid = ?", conversationUID); err != nil {
		return errors.Wrap(err, "failed to delete messages")
	}
	return nil
}
