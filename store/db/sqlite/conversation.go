package sqlite

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/crewmind/crewmind/store"
)

func marshalMetadata(md map[string]any) (string, error) {
	if md == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return "", errors.Wrap(err, "marshal metadata")
	}
	return string(raw), nil
}

func unmarshalMetadata(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var md map[string]any
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return nil, errors.Wrap(err, "unmarshal metadata")
	}
	return md, nil
}

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	metadata, err := marshalMetadata(create.Metadata)
	if err != nil {
		return nil, err
	}
	stmt := `
		INSERT INTO conversation (uid, owner, created_ts, updated_ts, metadata)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.UID, create.Owner, create.CreatedTs, create.UpdatedTs, metadata,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}
	return create, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.UID != nil {
		where, args = append(where, "uid = ?"), append(args, *find.UID)
	}
	if find.Owner != nil {
		where, args = append(where, "owner = ?"), append(args, *find.Owner)
	}

	query := `
		SELECT uid, owner, created_ts, updated_ts, metadata
		FROM conversation
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_ts DESC, id DESC
	`
	if find.Limit > 0 || find.Skip > 0 {
		// SQLite requires a LIMIT clause to use OFFSET; -1 is unbounded.
		limit := find.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ?"
		args = append(args, limit)
		if find.Skip > 0 {
			query += " OFFSET ?"
			args = append(args, find.Skip)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	var list []*store.Conversation
	for rows.Next() {
		var (
			conv     store.Conversation
			metadata string
		)
		if err := rows.Scan(&conv.UID, &conv.Owner, &conv.CreatedTs, &conv.UpdatedTs, &metadata); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		if conv.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return nil, err
		}
		list = append(list, &conv)
	}
	return list, rows.Err()
}

func (d *DB) UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error) {
	set, args := []string{}, []any{}
	if update.UpdatedTs != nil {
		set, args = append(set, "updated_ts = ?"), append(args, *update.UpdatedTs)
	}
	if update.Metadata != nil {
		metadata, err := marshalMetadata(update.Metadata)
		if err != nil {
			return nil, err
		}
		set, args = append(set, "metadata = ?"), append(args, metadata)
	}
	if len(set) > 0 {
		args = append(args, update.UID)
		stmt := "UPDATE conversation SET " + strings.Join(set, ", ") + " WHERE uid = ?"
		if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
			return nil, errors.Wrap(err, "failed to update conversation")
		}
	}

	uid := update.UID
	list, err := d.ListConversations(ctx, &store.FindConversation{UID: &uid})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrConversationNotFound
	}
	return list[0], nil
}

func (d *DB) DeleteConversation(ctx context.Context, uid string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM conversation WHERE uid = ?", uid); err != nil {
		return errors.Wrap(err, "failed to delete conversation")
	}
	return nil
}
