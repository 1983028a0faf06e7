package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
	"golang.org/x/sync/errgroup"
)

// Profile is a user with the events they organize and the ones they attend.
type Profile struct {
	User      *model.User       `json:"user"`
	Created   []model.EventView `json:"createdEvents"`
	Attending []model.EventView `json:"attendingEvents"`
}

type ProfileService struct {
	users  repository.UserRepository
	events repository.EventRepository
	logger *slog.Logger
}

func NewProfileService(users repository.UserRepository, events repository.EventRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{users: users, events: events, logger: logger}
}

// Get runs the three reads concurrently. The first failure cancels the
// others and is returned.
func (s *ProfileService) Get(ctx context.Context, userID string) (*Profile, error) {
	var (
		user      *model.User
		created   []model.Event
		attending []model.Event
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.users.GetUserByID(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		created, err = s.events.ListByOrganizer(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		attending, err = s.events.ListByAttendee(gctx, userID)
		return err
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to load profile",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("loading profile of %s: %w", userID, err)
	}

	sortEvents(created, SortByDate)
	sortEvents(attending, SortByDate)

	return &Profile{
		User:      user,
		Created:   ListWithFillState(created, userID),
		Attending: ListWithFillState(attending, userID),
	}, nil
}
