package db

import (
	"context"
	"fmt"

	"breakout/internal/records"
)

func (d *DB) CreateRoom(ctx context.Context, lookupID string) (records.Room, error) {
	var r records.Room
	err := d.conn.QueryRowContext(ctx, `
		INSERT INTO breakouts (lookup_id)
		VALUES ($1)
		RETURNING id, lookup_id, created_at, updated_at
	`, lookupID).Scan(&r.ID, &r.LookupID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return records.Room{}, fmt.Errorf("creating breakout: %w", translate(err))
	}
	return r, nil
}

func (d *DB) FindRoom(ctx context.Context, lookupID string) (records.Room, error) {
	var r records.Room
	err := d.conn.QueryRowContext(ctx, `
		SELECT id, lookup_id, created_at, updated_at FROM breakouts WHERE lookup_id = $1
	`, lookupID).Scan(&r.ID, &r.LookupID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return records.Room{}, fmt.Errorf("finding breakout: %w", translate(err))
	}
	return r, nil
}
