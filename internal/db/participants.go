package db

import (
	"context"
	"fmt"

	"breakout/internal/records"
)

func (d *DB) CreateParticipant(ctx context.Context, lookupID, displayName string) (records.Participant, error) {
	var p records.Participant
	err := d.conn.QueryRowContext(ctx, `
		INSERT INTO participants (lookup_id, display_name)
		VALUES ($1, $2)
		RETURNING id, lookup_id, display_name, created_at, updated_at
	`, lookupID, displayName).Scan(&p.ID, &p.LookupID, &p.DisplayName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return records.Participant{}, fmt.Errorf("creating participant: %w", translate(err))
	}
	return p, nil
}

func (d *DB) FindParticipant(ctx context.Context, lookupID string) (records.Participant, error) {
	var p records.Participant
	err := d.conn.QueryRowContext(ctx, `
		SELECT id, lookup_id, display_name, created_at, updated_at FROM participants WHERE lookup_id = $1
	`, lookupID).Scan(&p.ID, &p.LookupID, &p.DisplayName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return records.Participant{}, fmt.Errorf("finding participant: %w", translate(err))
	}
	return p, nil
}

func (d *DB) UpdateDisplayName(ctx context.Context, lookupID, displayName string) (records.Participant, error) {
	var p records.Participant
	err := d.conn.QueryRowContext(ctx, `
		UPDATE participants SET display_name = $2, updated_at = now()
		WHERE lookup_id = $1
		RETURNING id, lookup_id, display_name, created_at, updated_at
	`, lookupID, displayName).Scan(&p.ID, &p.LookupID, &p.DisplayName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return records.Participant{}, fmt.Errorf("updating participant: %w", translate(err))
	}
	return p, nil
}
