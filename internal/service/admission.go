package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/metrics"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
)

// AdmissionController decides who gets a seat.
//
// It owns no state. Every decision is made by the store in a single
// conditional update, so any number of controllers (or server processes)
// can run against the same store without exceeding an event's capacity.
type AdmissionController struct {
	events repository.EventRepository
	logger *slog.Logger
}

func NewAdmissionController(events repository.EventRepository, logger *slog.Logger) *AdmissionController {
	return &AdmissionController{events: events, logger: logger}
}

// Join adds userID to the event's attendees.
//
// The append happens only if the event exists, the user is not yet an
// attendee and a seat is free, all checked by the store in the same
// statement that appends. When nothing matched, one diagnostic read tells
// AlreadyJoined apart from everything else, which is reported as
// Unavailable. The diagnostic read never retries the join.
func (c *AdmissionController) Join(ctx context.Context, eventID, userID string) (*model.Event, error) {
	event, err := c.events.AddAttendee(ctx, eventID, userID)
	if err == nil {
		metrics.ObserveRSVP(metrics.OpJoin, metrics.ResultJoined)
		c.logger.Info("event joined",
			slog.String("eventID", eventID),
			slog.String("userID", userID),
			slog.Int("attendees", len(event.Attendees)),
			slog.Int("capacity", event.Capacity),
		)
		return event, nil
	}

	if !errors.Is(err, repository.ErrConditionNotMet) {
		metrics.ObserveRSVP(metrics.OpJoin, metrics.ResultError)
		c.logger.Error("join failed",
			slog.String("eventID", eventID),
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("joining event %s: %w", eventID, err)
	}

	current, err := c.events.GetByID(ctx, eventID)
	switch {
	case err == nil && current.HasAttendee(userID):
		metrics.ObserveRSVP(metrics.OpJoin, metrics.ResultAlreadyJoined)
		return nil, apperror.AlreadyJoined()

	case err == nil, errors.Is(err, apperror.ErrNotFound):
		metrics.ObserveRSVP(metrics.OpJoin, metrics.ResultUnavailable)
		return nil, apperror.Unavailable()

	default:
		metrics.ObserveRSVP(metrics.OpJoin, metrics.ResultError)
		c.logger.Error("join diagnostic read failed",
			slog.String("eventID", eventID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("classifying failed join of event %s: %w", eventID, err)
	}
}

// Leave removes userID from the event's attendees. Leaving an event the user
// never joined succeeds and returns the event unchanged; only a missing event
// is an error.
func (c *AdmissionController) Leave(ctx context.Context, eventID, userID string) (*model.Event, error) {
	event, err := c.events.RemoveAttendee(ctx, eventID, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			metrics.ObserveRSVP(metrics.OpLeave, metrics.ResultNotFound)
			return nil, err
		}
		metrics.ObserveRSVP(metrics.OpLeave, metrics.ResultError)
		c.logger.Error("leave failed",
			slog.String("eventID", eventID),
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("leaving event %s: %w", eventID, err)
	}

	metrics.ObserveRSVP(metrics.OpLeave, metrics.ResultLeft)
	c.logger.Info("event left",
		slog.String("eventID", eventID),
		slog.String("userID", userID),
	)
	return event, nil
}

// ListWithFillState derives the per-viewer view of each event. viewerID may
// be empty for anonymous callers, who are never members or organizers.
func ListWithFillState(events []model.Event, viewerID string) []model.EventView {
	views := make([]model.EventView, 0, len(events))
	for _, e := range events {
		views = append(views, model.NewEventView(e, viewerID))
	}
	return views
}
