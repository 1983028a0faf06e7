package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
)

var _ repository.EventRepository = (*EventDB)(nil)

// EventDB is the PostgreSQL EventRepository.
type EventDB struct {
	pool *pgxpool.Pool
}

const eventColumns = `id, title, description, date, location, capacity,
	category, image, organizer_id, attendees, created_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	if err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Date, &e.Location, &e.Capacity,
		&e.Category, &e.Image, &e.Organizer, &e.Attendees, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	if e.Attendees == nil {
		e.Attendees = []string{}
	}
	e.Date = e.Date.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (r *EventDB) Create(ctx context.Context, event *model.Event) error {
	event.ID = uuid.New().String()
	event.CreatedAt = time.Now().UTC()
	event.Attendees = []string{}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO events (id, title, description, date, location, capacity,
		                     category, image, organizer_id, attendees, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '{}', $10)`,
		event.ID, event.Title, event.Description, event.Date, event.Location,
		event.Capacity, event.Category, event.Image, event.Organizer, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *EventDB) GetByID(ctx context.Context, id string) (*model.Event, error) {
	event, err := scanEvent(r.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("event", id)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (r *EventDB) List(ctx context.Context) ([]model.Event, error) {
	return r.query(ctx, "list events",
		`SELECT `+eventColumns+` FROM events ORDER BY date DESC`)
}

func (r *EventDB) ListByOrganizer(ctx context.Context, organizerID string) ([]model.Event, error) {
	return r.query(ctx, "list events by organizer",
		`SELECT `+eventColumns+` FROM events WHERE organizer_id = $1 ORDER BY date DESC`,
		organizerID)
}

func (r *EventDB) ListByAttendee(ctx context.Context, userID string) ([]model.Event, error) {
	return r.query(ctx, "list events by attendee",
		`SELECT `+eventColumns+` FROM events WHERE attendees @> ARRAY[$1::text] ORDER BY date DESC`,
		userID)
}

func (r *EventDB) query(ctx context.Context, op, sql string, args ...any) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// AddAttendee appends userID in one UPDATE guarded by capacity and
// membership. No transaction or explicit lock is needed: a concurrent UPDATE
// of the same row blocks on the row lock, then re-checks the WHERE clause
// against the committed version before writing.
func (r *EventDB) AddAttendee(ctx context.Context, eventID, userID string) (*model.Event, error) {
	event, err := scanEvent(r.pool.QueryRow(ctx,
		`UPDATE events
		 SET attendees = array_append(attendees, $2::text)
		 WHERE id = $1
		   AND cardinality(attendees) < capacity
		   AND NOT ($2::text = ANY(attendees))
		 RETURNING `+eventColumns,
		eventID, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrConditionNotMet
		}
		return nil, fmt.Errorf("add attendee: %w", err)
	}
	return event, nil
}

// RemoveAttendee drops every occurrence of userID. Non-members leave the
// array unchanged.
func (r *EventDB) RemoveAttendee(ctx context.Context, eventID, userID string) (*model.Event, error) {
	event, err := scanEvent(r.pool.QueryRow(ctx,
		`UPDATE events
		 SET attendees = array_remove(attendees, $2::text)
		 WHERE id = $1
		 RETURNING `+eventColumns,
		eventID, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("event", eventID)
		}
		return nil, fmt.Errorf("remove attendee: %w", err)
	}
	return event, nil
}

func (r *EventDB) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("event", id)
	}
	return nil
}
