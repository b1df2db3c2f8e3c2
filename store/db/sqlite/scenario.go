package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/voxmate/voxmate/store"
)

func (d *DB) CreateScenario(ctx context.Context, create *store.Scenario) (*store.Scenario, error) {
	fields := []string{"uid", "title", "system_prompt", "turn_limit", "script"}
	placeholderValues := []any{
		create.UID, create.Title, create.SystemPrompt, create.TurnLimit, create.Script,
	}

	if create.CreatedTs != 0 {
		fields = append(fields, "created_ts")
		placeholderValues = append(placeholderValues, create.CreatedTs)
	}
	if create.UpdatedTs != 0 {
		fields = append(fields, "updated_ts")
		placeholderValues = append(placeholderValues, create.UpdatedTs)
	}

	stmt := `INSERT INTO scenario (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(placeholderValues)) + `)
		RETURNING id, created_ts, updated_ts`

	if err := d.db.QueryRowContext(ctx, stmt, placeholderValues...).Scan(
		&create.ID,
		&create.CreatedTs,
		&create.UpdatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create scenario: %w", err)
	}

	return create, nil
}

func (d *DB) ListScenarios(ctx context.Context, find *store.FindScenario) ([]*store.Scenario, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "scenario.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "scenario.uid = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT
			id, uid, created_ts, updated_ts,
			title, system_prompt, turn_limit, script
		FROM scenario
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY scenario.id ASC`

	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Scenario, 0)
	for rows.Next() {
		var scenario store.Scenario
		if err := rows.Scan(
			&scenario.ID,
			&scenario.UID,
			&scenario.CreatedTs,
			&scenario.UpdatedTs,
			&scenario.Title,
			&scenario.SystemPrompt,
			&scenario.TurnLimit,
			&scenario.Script,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}
		if scenario.Script == "" {
			scenario.Script = "[]"
		}
		list = append(list, &scenario)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scenarios: %w", err)
	}

	return list, nil
}

func (d *DB) UpdateScenario(ctx context.Context, update *store.UpdateScenario) error {
	set, args := []string{}, []any{}

	if v := update.Title; v != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.SystemPrompt; v != nil {
		set, args = append(set, "system_prompt = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.TurnLimit; v != nil {
		set, args = append(set, "turn_limit = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Script; v != nil {
		set, args = append(set, "script = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *v)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, update.ID)

	stmt := `UPDATE scenario SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to update scenario: %w", err)
	}

	return nil
}

func (d *DB) DeleteScenario(ctx context.Context, delete *store.DeleteScenario) error {
	stmt := `DELETE FROM scenario WHERE id = ` + placeholder(1)
	result, err := d.db.ExecContext(ctx, stmt, delete.ID)
	if err != nil {
		return fmt.Errorf("failed to delete scenario: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("scenario not found")
	}

	return nil
}
