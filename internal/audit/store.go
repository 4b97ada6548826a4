package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/millerp/millerp/internal/platform/database"
)

// Record is a persisted audit event as returned by queries.
type Record struct {
	ID           uuid.UUID       `json:"id"`
	MillID       *uuid.UUID      `json:"mill_id"`
	UserID       *uuid.UUID      `json:"user_id"`
	Action       string          `json:"action"`
	ResourceType *string         `json:"resource_type"`
	ResourceID   *uuid.UUID      `json:"resource_id"`
	Metadata     json.RawMessage `json:"metadata"`
	Source       string          `json:"source"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Store handles audit event persistence.
type Store struct{}

// NewStore creates an audit Store.
func NewStore() *Store {
	return &Store{}
}

// InsertBatch writes a batch of events to the database.
func (s *Store) InsertBatch(ctx context.Context, db database.Querier, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	sql, args, err := buildBatchInsert(events)
	if err != nil {
		return fmt.Errorf("building batch insert: %w", err)
	}
	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("inserting audit events: %w", err)
	}
	return nil
}

// List returns the events matching p, newest first.
func (s *Store) List(ctx context.Context, db database.Querier, p ListEventsParams) ([]Record, error) {
	sql, args := buildListQuery(p)
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.MillID, &rec.UserID, &rec.Action, &rec.ResourceType,
			&rec.ResourceID, &rec.Metadata, &rec.Source, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PurgeBefore deletes every event created before cutoff and returns the number removed.
func (s *Store) PurgeBefore(ctx context.Context, db database.Querier, cutoff time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM audit_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging audit events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// buildBatchInsert constructs a multi-row INSERT statement.
func buildBatchInsert(events []Event) (string, []any, error) {
	const cols = "(mill_id, user_id, action, resource_type, resource_id, metadata, source)"
	placeholders := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*7)

	for i, e := range events {
		base := i * 7
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))

		var metaJSON []byte
		if e.Metadata != nil {
			var err error
			metaJSON, err = json.Marshal(e.Metadata)
			if err != nil {
				return "", nil, fmt.Errorf("marshaling metadata: %w", err)
			}
		}

		var resourceType *string
		if e.ResourceType != "" {
			resourceType = &e.ResourceType
		}
		source := e.Source
		if source == "" {
			source = SourceAPI
		}

		args = append(args, e.MillID, e.UserID, e.Action, resourceType, e.ResourceID, metaJSON, source)
	}

	sql := fmt.Sprintf("INSERT INTO audit_events %s VALUES %s", cols, strings.Join(placeholders, ", "))
	return sql, args, nil
}

// ListEventsParams defines filters for querying audit events.
type ListEventsParams struct {
	MillID       uuid.UUID
	Action       *string
	ResourceType *string
	UserID       *uuid.UUID
	Source       *string
	After        *time.Time
	Before       *time.Time
	Limit        int
}

// buildListQuery constructs a parameterized SELECT for audit events.
func buildListQuery(p ListEventsParams) (string, []any) {
	conditions := []string{"mill_id = $1"}
	args := []any{p.MillID}

	add := func(column, op string, v any) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf("%s %s $%d", column, op, len(args)))
	}

	if p.Action != nil {
		add("action", "=", *p.Action)
	}
	if p.ResourceType != nil {
		add("resource_type", "=", *p.ResourceType)
	}
	if p.UserID != nil {
		add("user_id", "=", *p.UserID)
	}
	if p.Source != nil {
		add("source", "=", *p.Source)
	}
	if p.After != nil {
		add("created_at", ">", *p.After)
	}
	if p.Before != nil {
		add("created_at", "<", *p.Before)
	}

	args = append(args, p.Limit)
	sql := fmt.Sprintf(
		`SELECT id, mill_id, user_id, action, resource_type, resource_id, metadata, source, created_at
		FROM audit_events
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d`,
		strings.Join(conditions, " AND "), len(args),
	)

	return sql, args
}
