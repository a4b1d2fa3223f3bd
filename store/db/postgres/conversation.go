package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/crewmind/crewmind/store"
)

func marshalMetadata(md map[string]any) ([]byte, error) {
	if md == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, errors.Wrap(err, "marshal metadata")
	}
	return raw, nil
}

func unmarshalMetadata(raw []byte) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "{}" {
		return nil, nil
	}
	var md map[string]any
	if err := json.Unmarshal(raw, &md); err != nil {
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
		VALUES (` + placeholders(5) + `)
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.UID, create.Owner, create.CreatedTs, create.UpdatedTs, metadata,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}
	return create, nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"TRUE"}, []any{}
	if find.UID != nil {
		args = append(args, *find.UID)
		where = append(where, fmt.Sprintf("uid = $%d", len(args)))
	}
	if find.Owner != nil {
		args = append(args, *find.Owner)
		where = append(where, fmt.Sprintf("owner = $%d", len(args)))
	}

	query := `
		SELECT uid, owner, created_ts, updated_ts, metadata
		FROM conversation
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_ts DESC, id DESC
	`
	if find.Limit > 0 {
		args = append(args, find.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if find.Skip > 0 {
		args = append(args, find.Skip)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
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
			metadata []byte
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
		args = append(args, *update.UpdatedTs)
		set = append(set, fmt.Sprintf("updated_ts = $%d", len(args)))
	}
	if update.Metadata != nil {
		metadata, err := marshalMetadata(update.Metadata)
		if err != nil {
			return nil, err
		}
		args = append(args, metadata)
		set = append(set, fmt.Sprintf("metadata = $%d", len(args)))
	}
	if len(set) > 0 {
		args = append(args, update.UID)
		stmt := fmt.Sprintf("UPDATE conversation SET %s WHERE uid = $%d", strings.Join(set, ", "), len(args))
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
	if _, err := d.db.ExecContext(ctx, "DELETE FROM conversation WHERE uid = $1", uid); err != nil {
		return errors.Wrap(err, "failed to delete conversation")
	}
	return nil
}
