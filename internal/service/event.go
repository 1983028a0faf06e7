// Package service holds eventhub's business rules. Handlers translate HTTP
// into calls on these services; the services validate input, enforce
// ownership and talk to the repositories through their interfaces.
package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MaxLocationLength    = 200
	MaxImageURLLength    = 2048
)

// Sort orders accepted by List.
const (
	SortByDate       = "date"
	SortByPopularity = "popularity"
)

// dateLayouts are tried in order. Date-only and minute-precision inputs are
// read as UTC.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02",
}

// CreateEventInput is the organizer-supplied part of a new event.
type CreateEventInput struct {
	Title       string
	Description string
	Date        string
	Location    string
	Capacity    int
	Category    string
	Image       string
}

// ListQuery narrows and orders List results. The zero value lists every
// event, newest date first.
type ListQuery struct {
	Search   string // case-insensitive substring of the title
	Category string // "" or "All" for any
	Sort     string // SortByDate (default) or SortByPopularity
}

type EventService struct {
	events repository.EventRepository
	users  repository.UserRepository
	logger *slog.Logger
}

func NewEventService(events repository.EventRepository, users repository.UserRepository, logger *slog.Logger) *EventService {
	return &EventService{events: events, users: users, logger: logger}
}

// Create validates in and stores a new event organized by organizerID with
// an empty attendee set. Validation stops at the first bad field.
func (s *EventService) Create(ctx context.Context, organizerID string, in CreateEventInput) (*model.Event, error) {
	event, err := validateCreate(in)
	if err != nil {
		return nil, err
	}
	event.Organizer = organizerID

	if err := s.events.Create(ctx, event); err != nil {
		s.logger.Error("failed to create event",
			slog.String("organizerID", organizerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating event: %w", err)
	}

	s.logger.Info("event created",
		slog.String("id", event.ID),
		slog.String("organizerID", organizerID),
		slog.Int("capacity", event.Capacity),
	)
	return event, nil
}

func validateCreate(in CreateEventInput) (*model.Event, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	location := strings.TrimSpace(in.Location)
	category := strings.TrimSpace(in.Category)
	image := strings.TrimSpace(in.Image)

	switch {
	case title == "":
		return nil, apperror.ValidationFailed("title", "Title is required")
	case len(title) > MaxTitleLength:
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("Title must be %d characters or less", MaxTitleLength))
	case description == "":
		return nil, apperror.ValidationFailed("description", "Description is required")
	case len(description) > MaxDescriptionLength:
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("Description must be %d characters or less", MaxDescriptionLength))
	}

	date, err := ParseEventDate(in.Date)
	if err != nil {
		return nil, err
	}

	switch {
	case location == "":
		return nil, apperror.ValidationFailed("location", "Location is required")
	case len(location) > MaxLocationLength:
		return nil, apperror.ValidationFailed("location",
			fmt.Sprintf("Location must be %d characters or less", MaxLocationLength))
	case in.Capacity < 1:
		return nil, apperror.ValidationFailed("capacity", "Capacity must be a whole number of at least 1")
	}

	if category == "" {
		category = model.CategoryGeneral
	}
	if !model.ValidCategory(category) {
		return nil, apperror.ValidationFailed("category",
			"Category must be one of "+strings.Join(model.Categories, ", "))
	}

	if image != "" && !validImageURL(image) {
		return nil, apperror.ValidationFailed("image", "Image must be an absolute http or https URL")
	}

	return &model.Event{
		Title:       title,
		Description: description,
		Date:        date,
		Location:    location,
		Capacity:    in.Capacity,
		Category:    category,
		Image:       image,
	}, nil
}

// ParseEventDate accepts RFC 3339, "YYYY-MM-DDTHH:MM" or "YYYY-MM-DD".
func ParseEventDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, apperror.ValidationFailed("date", "Date is required")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperror.ValidationFailed("date", "Date must be a valid date")
}

func validImageURL(raw string) bool {
	if len(raw) > MaxImageURLLength {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// List returns every event matching q, annotated for viewerID.
func (s *EventService) List(ctx context.Context, q ListQuery, viewerID string) ([]model.EventView, error) {
	category := strings.TrimSpace(q.Category)
	if category == "All" {
		category = ""
	}
	if category != "" && !model.ValidCategory(category) {
		return nil, apperror.ValidationFailed("category",
			"Category must be All or one of "+strings.Join(model.Categories, ", "))
	}

	sortBy := strings.TrimSpace(q.Sort)
	if sortBy == "" {
		sortBy = SortByDate
	}
	if sortBy != SortByDate && sortBy != SortByPopularity {
		return nil, apperror.ValidationFailed("sort", "Sort must be date or popularity")
	}

	events, err := s.events.List(ctx)
	if err != nil {
		s.logger.Error("failed to list events", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing events: %w", err)
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	events = slices.DeleteFunc(events, func(e model.Event) bool {
		if category != "" && e.Category != category {
			return true
		}
		return search != "" && !strings.Contains(strings.ToLower(e.Title), search)
	})

	sortEvents(events, sortBy)

	views := ListWithFillState(events, viewerID)
	if err := s.fillOrganizerNames(ctx, views); err != nil {
		return nil, err
	}
	return views, nil
}

// sortEvents orders by date (newest first) or by attendee count with date
// as the tie-breaker.
func sortEvents(events []model.Event, sortBy string) {
	byDate := func(a, b model.Event) int { return b.Date.Compare(a.Date) }

	if sortBy == SortByPopularity {
		slices.SortStableFunc(events, func(a, b model.Event) int {
			if c := cmp.Compare(len(b.Attendees), len(a.Attendees)); c != 0 {
				return c
			}
			return byDate(a, b)
		})
		return
	}
	slices.SortStableFunc(events, byDate)
}

// Get returns one event as seen by viewerID.
func (s *EventService) Get(ctx context.Context, id, viewerID string) (*model.EventView, error) {
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeError("getting event", id, err)
	}
	views := []model.EventView{model.NewEventView(*event, viewerID)}
	if err := s.fillOrganizerNames(ctx, views); err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListMine returns the events organized by organizerID, newest date first.
func (s *EventService) ListMine(ctx context.Context, organizerID string) ([]model.EventView, error) {
	events, err := s.events.ListByOrganizer(ctx, organizerID)
	if err != nil {
		s.logger.Error("failed to list organizer events",
			slog.String("organizerID", organizerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing events of %s: %w", organizerID, err)
	}
	sortEvents(events, SortByDate)

	views := ListWithFillState(events, organizerID)
	if err := s.fillOrganizerNames(ctx, views); err != nil {
		return nil, err
	}
	return views, nil
}

// fillOrganizerNames sets OrganizerName on every view with one username
// lookup for all distinct organizers.
func (s *EventService) fillOrganizerNames(ctx context.Context, views []model.EventView) error {
	if len(views) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(views))
	ids := make([]string, 0, len(views))
	for _, v := range views {
		if _, ok := seen[v.Organizer]; !ok {
			seen[v.Organizer] = struct{}{}
			ids = append(ids, v.Organizer)
		}
	}

	names, err := s.users.Usernames(ctx, ids)
	if err != nil {
		s.logger.Error("failed to look up organizer names",
			slog.Int("organizers", len(ids)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("looking up organizer names: %w", err)
	}

	for i := range views {
		views[i].OrganizerName = names[views[i].Organizer]
	}
	return nil
}

// Delete removes the event if requesterID organized it.
func (s *EventService) Delete(ctx context.Context, id, requesterID string) error {
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return s.storeError("getting event", id, err)
	}

	if event.Organizer != requesterID {
		return apperror.Forbidden("Only the organizer can delete this event")
	}

	if err := s.events.Delete(ctx, id); err != nil {
		return s.storeError("deleting event", id, err)
	}

	s.logger.Info("event deleted",
		slog.String("id", id),
		slog.String("organizerID", requesterID),
	)
	return nil
}

// storeError passes NotFound through untouched and logs anything else as
// an unexpected store failure.
func (s *EventService) storeError(op, id string, err error) error {
	if errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	s.logger.Error("store failure",
		slog.String("op", op),
		slog.String("id", id),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%s %s: %w", op, id, err)
}
