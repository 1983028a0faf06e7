// Package repository declares the storage contracts the service layer
// depends on. Implementations live in the sqlite and postgres subpackages.
package repository

import (
	"context"
	"errors"

	"github.com/sakif/eventhub/internal/model"
)

// ErrConditionNotMet is returned by AddAttendee when its filter matched no
// event: the event is missing, full, or already contains the user. The
// store does not say which; callers that care must look again.
var ErrConditionNotMet = errors.New("repository: conditional update matched no event")

// EventRepository stores events and their attendee sets.
//
// Every method is a single round trip. AddAttendee and RemoveAttendee must be
// atomic per event: the check and the mutation happen in one statement.
type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	ListByOrganizer(ctx context.Context, organizerID string) ([]model.Event, error)
	ListByAttendee(ctx context.Context, userID string) ([]model.Event, error)

	// AddAttendee appends userID to the event's attendees only if the event
	// exists, userID is not already an attendee, and a seat is free. It
	// returns the event as stored after the append, or ErrConditionNotMet.
	AddAttendee(ctx context.Context, eventID, userID string) (*model.Event, error)

	// RemoveAttendee removes userID if present and returns the stored event.
	// Removing a non-member is not an error. Missing events are NotFound.
	RemoveAttendee(ctx context.Context, eventID, userID string) (*model.Event, error)

	Delete(ctx context.Context, id string) error
}

// UserRepository stores accounts. Email lookups expect a lower-cased email.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)

	// Usernames maps each known ID in ids to its username. Unknown IDs are
	// left out.
	Usernames(ctx context.Context, ids []string) (map[string]string, error)

	// UpsertGitHub inserts or refreshes the account linked to user.GitHubID
	// and fills in the stored ID and CreatedAt.
	UpsertGitHub(ctx context.Context, user *model.User) error
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
