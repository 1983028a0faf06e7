package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================

// fakeEventRepo is an in-memory EventRepository. One mutex guards all
// events, so AddAttendee is as atomic as the real conditional UPDATE.
// Setting one of the *Err fields makes the matching method fail.
type fakeEventRepo struct {
	mu     sync.Mutex
	events map[string]*model.Event
	nextID int

	createErr error
	getErr    error
	listErr   error
	addErr    error
	removeErr error
	deleteErr error

	// afterFailedAdd runs after a failed conditional append, before the
	// controller's diagnostic read. Tests use it to simulate a race.
	afterFailedAdd func()
}

var _ repository.EventRepository = (*fakeEventRepo)(nil)

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[string]*model.Event)}
}

func cloneEvent(e *model.Event) *model.Event {
	c := *e
	c.Attendees = slices.Clone(e.Attendees)
	if c.Attendees == nil {
		c.Attendees = []string{}
	}
	return &c
}

// seed stores an event directly, bypassing validation.
func (f *fakeEventRepo) seed(e model.Event) *model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if e.ID == "" {
		e.ID = "evt-" + strconv.Itoa(f.nextID)
	}
	if e.Attendees == nil {
		e.Attendees = []string{}
	}
	f.events[e.ID] = cloneEvent(&e)
	return cloneEvent(&e)
}

func (f *fakeEventRepo) Create(_ context.Context, e *model.Event) error {
	if f.createErr != nil {
		return f.createErr
	}
	e.Attendees = []string{}
	e.CreatedAt = time.Now().UTC()
	stored := f.seed(*e)
	e.ID = stored.ID
	return nil
}

func (f *fakeEventRepo) GetByID(_ context.Context, id string) (*model.Event, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, apperror.NotFound("event", id)
	}
	return cloneEvent(e), nil
}

func (f *fakeEventRepo) filter(keep func(*model.Event) bool) ([]model.Event, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Event{}
	for _, e := range f.events {
		if keep(e) {
			out = append(out, *cloneEvent(e))
		}
	}
	slices.SortFunc(out, func(a, b model.Event) int { return b.Date.Compare(a.Date) })
	return out, nil
}

func (f *fakeEventRepo) List(context.Context) ([]model.Event, error) {
	return f.filter(func(*model.Event) bool { return true })
}

func (f *fakeEventRepo) ListByOrganizer(_ context.Context, organizerID string) ([]model.Event, error) {
	return f.filter(func(e *model.Event) bool { return e.Organizer == organizerID })
}

func (f *fakeEventRepo) ListByAttendee(_ context.Context, userID string) ([]model.Event, error) {
	return f.filter(func(e *model.Event) bool { return e.HasAttendee(userID) })
}

func (f *fakeEventRepo) AddAttendee(_ context.Context, eventID, userID string) (*model.Event, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.mu.Lock()
	e, ok := f.events[eventID]
	if !ok || e.HasAttendee(userID) || len(e.Attendees) >= e.Capacity {
		f.mu.Unlock()
		if f.afterFailedAdd != nil {
			f.afterFailedAdd()
		}
		return nil, repository.ErrConditionNotMet
	}
	e.Attendees = append(e.Attendees, userID)
	out := cloneEvent(e)
	f.mu.Unlock()
	return out, nil
}

func (f *fakeEventRepo) RemoveAttendee(_ context.Context, eventID, userID string) (*model.Event, error) {
	if f.removeErr != nil {
		return nil, f.removeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[eventID]
	if !ok {
		return nil, apperror.NotFound("event", eventID)
	}
	e.Attendees = slices.DeleteFunc(e.Attendees, func(id string) bool { return id == userID })
	return cloneEvent(e), nil
}

func (f *fakeEventRepo) Delete(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[id]; !ok {
		return apperror.NotFound("event", id)
	}
	delete(f.events, id)
	return nil
}

// fakeUserRepo is an in-memory UserRepository.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int

	usernameLookups int

	createErr error
	getErr    error
	upsertErr error
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return apperror.Conflict("An account with this email already exists")
		}
	}
	f.nextID++
	u.ID = "user-" + strconv.Itoa(f.nextID)
	u.CreatedAt = time.Now().UTC()
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) Usernames(_ context.Context, ids []string) (map[string]string, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usernameLookups++
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			names[id] = u.Username
		}
	}
	return names, nil
}

// seedUser stores u under its own ID.
func (f *fakeUserRepo) seedUser(u model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = &u
}

func (f *fakeUserRepo) UpsertGitHub(ctx context.Context, u *model.User) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	var existing *model.User
	for _, candidate := range f.users {
		if candidate.GitHubID != nil && *candidate.GitHubID == *u.GitHubID {
			existing = candidate
			break
		}
	}
	if existing == nil {
		for _, candidate := range f.users {
			if candidate.Email == u.Email {
				existing = candidate
				break
			}
		}
	}
	if existing == nil {
		f.mu.Unlock()
		return f.Create(ctx, u)
	}
	if existing.GitHubID != nil && *existing.GitHubID != *u.GitHubID {
		f.mu.Unlock()
		return apperror.Conflict(apperror.MsgEmailLinkedElsewhere)
	}
	existing.Username = u.Username
	existing.GitHubID = u.GitHubID
	*u = *existing
	f.mu.Unlock()
	return nil
}

// discardLogger keeps test output quiet.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
