package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/voxmate/voxmate/store"
)

func (d *DB) CreateCallRecord(ctx context.Context, create *store.CallRecord) (*store.CallRecord, error) {
	fields := []string{"uid", "scenario_uid", "mode", "status", "turn_count", "wrong_attempts", "score"}
	placeholderValues := []any{
		create.UID, create.ScenarioUID, create.Mode, create.Status,
		create.TurnCount, create.WrongAttempts, create.Score,
	}

	if create.CreatedTs != 0 {
		fields = append(fields, "created_ts")
		placeholderValues = append(placeholderValues, create.CreatedTs)
	}

	stmt := `INSERT INTO call_record (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(placeholderValues)) + `)
		RETURNING id, created_ts`

	if err := d.db.QueryRowContext(ctx, stmt, placeholderValues...).Scan(
		&create.ID,
		&create.CreatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create call record: %w", err)
	}

	return create, nil
}

func (d *DB) ListCallRecords(ctx context.Context, find *store.FindCallRecord) ([]*store.CallRecord, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "call_record.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "call_record.uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.ScenarioUID; v != nil {
		where, args = append(where, "call_record.scenario_uid = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT
			id, uid, scenario_uid, mode, status,
			turn_count, wrong_attempts, score, created_ts
		FROM call_record
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY call_record.created_ts DESC, call_record.id DESC`

	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query call records: %w", err)
	}
	defer rows.Close()

	list := make([]*store.CallRecord, 0)
	for rows.Next() {
		var record store.CallRecord
		if err := rows.Scan(
			&record.ID,
			&record.UID,
			&record.ScenarioUID,
			&record.Mode,
			&record.Status,
			&record.TurnCount,
			&record.WrongAttempts,
			&record.Score,
			&record.CreatedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan call record: %w", err)
		}
		list = append(list, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call records: %w", err)
	}

	return list, nil
}

func (d *DB) DeleteCallRecord(ctx context.Context, delete *store.DeleteCallRecord) error {
	stmt := `DELETE FROM call_record WHERE id = ` + placeholder(1)
	result, err := d.db.ExecContext(ctx, stmt, delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete call record: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("call record not found")
	}

	return nil
}
