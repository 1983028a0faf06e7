package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
)

var _ repository.EventRepository = (*EventDB)(nil)

// EventDB is the SQLite EventRepository.
type EventDB struct {
	conn *sql.DB
}

// eventColumns is shared by every SELECT and RETURNING clause so that
// scanEvent always sees the same column order.
const eventColumns = `id, title, description, date, location, capacity,
	category, image, organizer_id, attendees, created_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e               model.Event
		date, createdAt string
		attendeesJSON   string
	)
	if err := row.Scan(
		&e.ID, &e.Title, &e.Description, &date, &e.Location, &e.Capacity,
		&e.Category, &e.Image, &e.Organizer, &attendeesJSON, &createdAt,
	); err != nil {
		return nil, err
	}

	var err error
	if e.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	e.Attendees = []string{}
	if err := json.Unmarshal([]byte(attendeesJSON), &e.Attendees); err != nil {
		return nil, fmt.Errorf("decoding attendees of event %s: %w", e.ID, err)
	}

	return &e, nil
}

// Create inserts a new event with an empty attendee set. It assigns the ID
// and CreatedAt on the caller's struct.
func (r *EventDB) Create(ctx context.Context, event *model.Event) error {
	event.ID = xid.New().String()
	event.CreatedAt = time.Now().UTC()
	event.Attendees = []string{}

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO events (id, title, description, date, location, capacity,
		                     category, image, organizer_id, attendees, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '[]', ?)`,
		event.ID,
		event.Title,
		event.Description,
		formatTime(event.Date),
		event.Location,
		event.Capacity,
		event.Category,
		event.Image,
		event.Organizer,
		formatTime(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating event: %w", err)
	}

	return nil
}

// GetByID returns apperror.ErrNotFound when no event has this ID.
func (r *EventDB) GetByID(ctx context.Context, id string) (*model.Event, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("event", id)
		}
		return nil, fmt.Errorf("sqlite: getting event %s: %w", id, err)
	}

	return event, nil
}

// List returns every event, latest date first.
func (r *EventDB) List(ctx context.Context) ([]model.Event, error) {
	return r.query(ctx, "listing events",
		`SELECT `+eventColumns+` FROM events ORDER BY date DESC`)
}

// ListByOrganizer returns the events organized by organizerID.
func (r *EventDB) ListByOrganizer(ctx context.Context, organizerID string) ([]model.Event, error) {
	return r.query(ctx, "listing events by organizer",
		`SELECT `+eventColumns+` FROM events
		 WHERE organizer_id = ?
		 ORDER BY date DESC`,
		organizerID)
}

// ListByAttendee returns the events whose attendee set contains userID.
func (r *EventDB) ListByAttendee(ctx context.Context, userID string) ([]model.Event, error) {
	return r.query(ctx, "listing events by attendee",
		`SELECT `+eventColumns+` FROM events
		 WHERE EXISTS (SELECT 1 FROM json_each(events.attendees) WHERE json_each.value = ?)
		 ORDER BY date DESC`,
		userID)
}

func (r *EventDB) query(ctx context.Context, op, query string, args ...any) ([]model.Event, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning event row: %w", err)
		}
		events = append(events, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}

	return events, nil
}

// AddAttendee is the admission check-and-append.
//
// The three preconditions (event exists, user not yet an attendee, a seat is
// free) are all in the WHERE clause of one UPDATE. SQLite evaluates the
// filter and writes the row inside the same statement, so two concurrent
// joins can never both see the last free seat. RETURNING hands back the row
// exactly as written by this statement.
func (r *EventDB) AddAttendee(ctx context.Context, eventID, userID string) (*model.Event, error) {
	row := r.conn.QueryRowContext(ctx,
		`UPDATE events
		 SET attendees = json_insert(attendees, '$[#]', ?)
		 WHERE id = ?
		   AND json_array_length(attendees) < capacity
		   AND NOT EXISTS (
		       SELECT 1 FROM json_each(events.attendees) WHERE json_each.value = ?
		   )
		 RETURNING `+eventColumns,
		userID, eventID, userID,
	)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrConditionNotMet
		}
		return nil, fmt.Errorf("sqlite: adding attendee to event %s: %w", eventID, err)
	}

	return event, nil
}

// RemoveAttendee rebuilds the attendee array without userID. When userID was
// not a member the array is rewritten unchanged, which is the no-op Leave
// semantics callers rely on.
func (r *EventDB) RemoveAttendee(ctx context.Context, eventID, userID string) (*model.Event, error) {
	row := r.conn.QueryRowContext(ctx,
		`UPDATE events
		 SET attendees = (
		     SELECT json_group_array(json_each.value)
		     FROM json_each(events.attendees)
		     WHERE json_each.value <> ?
		 )
		 WHERE id = ?
		 RETURNING `+eventColumns,
		userID, eventID,
	)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("event", eventID)
		}
		return nil, fmt.Errorf("sqlite: removing attendee from event %s: %w", eventID, err)
	}

	return event, nil
}

// Delete removes the event and, with it, its attendee set.
func (r *EventDB) Delete(ctx context.Context, id string) error {
	result, err := r.conn.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting event %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("event", id)
	}

	return nil
}
