package handler_test

import (
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/handler"
	"github.com/sakif/eventhub/internal/model"
)

func TestEventHandler_Create(t *testing.T) {
	api := newTestAPI(t)
	token, userID := api.register(t, "organizer")

	valid := func() map[string]any {
		return map[string]any{
			"title":       "Jazz Night",
			"description": "Live quartet",
			"date":        "2026-11-20",
			"location":    "Blue Note",
			"capacity":    40,
			"category":    model.CategoryMusic,
		}
	}

	t.Run("numeric capacity", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/api/events", valid(), token)

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var view model.EventView
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
		assert.Equal(t, "Jazz Night", view.Title)
		assert.Equal(t, 40, view.Capacity)
		assert.Equal(t, userID, view.Organizer)
		assert.Empty(t, view.Attendees)
		assert.True(t, view.IsOrganizer)
		assert.False(t, view.IsMember)
	})

	t.Run("capacity as a string", func(t *testing.T) {
		body := valid()
		body["capacity"] = "12"

		rr := api.do(t, http.MethodPost, "/api/events", body, token)

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var view model.EventView
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
		assert.Equal(t, 12, view.Capacity)
	})

	t.Run("missing category defaults to General", func(t *testing.T) {
		body := valid()
		delete(body, "category")

		rr := api.do(t, http.MethodPost, "/api/events", body, token)

		require.Equal(t, http.StatusCreated, rr.Code)
		var view model.EventView
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
		assert.Equal(t, model.CategoryGeneral, view.Category)
	})

	invalid := []struct {
		name      string
		key       string
		value     any
		wantField string
	}{
		{"blank title", "title", "   ", "title"},
		{"unparseable date", "date", "next friday", "date"},
		{"capacity not a number", "capacity", "lots", "capacity"},
		{"fractional capacity", "capacity", 2.5, "capacity"},
		{"zero capacity", "capacity", 0, "capacity"},
		{"unknown category", "category", "Cooking", "category"},
		{"relative image URL", "image", "/img/x.png", "image"},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			body := valid()
			body[tt.key] = tt.value

			rr := api.do(t, http.MethodPost, "/api/events", body, token)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			res := decodeError(t, rr)
			assert.Equal(t, handler.KindValidation, res.Error)
			assert.Equal(t, tt.wantField, res.Field)
		})
	}

	t.Run("requires authentication", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/api/events", valid(), "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestEventHandler_ListAndGet(t *testing.T) {
	api := newTestAPI(t)
	alice, aliceID := api.register(t, "alice")
	bob, _ := api.register(t, "bob")

	eventID := api.createEvent(t, alice, 2)
	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/events/rsvp/"+eventID, nil, bob).Code)

	t.Run("anonymous viewer is never a member", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/events", nil, "")

		require.Equal(t, http.StatusOK, rr.Code)
		var views []model.EventView
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&views))
		require.Len(t, views, 1)
		assert.Equal(t, 1, views[0].AttendeeCount)
		assert.Equal(t, "alice", views[0].OrganizerName)
		assert.False(t, views[0].IsMember)
		assert.False(t, views[0].IsOrganizer)
	})

	t.Run("signed-in viewer sees membership", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/events/"+eventID, nil, bob)

		require.Equal(t, http.StatusOK, rr.Code)
		var view model.EventView
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
		assert.True(t, view.IsMember)
		assert.False(t, view.IsFull)
		assert.Equal(t, "alice", view.OrganizerName)
	})

	t.Run("filters by search and category", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/events?q=meetup&category=Technology", nil, "")
		var views []model.EventView
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&views))
		assert.Len(t, views, 1)

		rr = api.do(t, http.MethodGet, "/api/events?category=Sports", nil, "")
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&views))
		assert.Empty(t, views)
	})

	t.Run("invalid sort", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/events?sort=alphabetical", nil, "")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "sort", decodeError(t, rr).Field)
	})

	t.Run("my-events lists only the caller's events", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/events/my-events", nil, alice)
		var views []model.EventView
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&views))
		require.Len(t, views, 1)
		assert.Equal(t, aliceID, views[0].Organizer)

		rr = api.do(t, http.MethodGet, "/api/events/my-events", nil, bob)
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&views))
		assert.Empty(t, views)
	})

	t.Run("unknown event", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/events/does-not-exist", nil, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, handler.KindNotFound, decodeError(t, rr).Error)
	})
}

func TestEventHandler_JoinAndLeave(t *testing.T) {
	api := newTestAPI(t)
	alice, aliceID := api.register(t, "alice")
	bob, _ := api.register(t, "bob")
	organizer, _ := api.register(t, "organizer")

	eventID := api.createEvent(t, organizer, 1)
	rsvp := "/api/events/rsvp/" + eventID

	// organizer does not count towards capacity
	rr := api.do(t, http.MethodPost, rsvp, nil, alice)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view := decodeRSVP(t, rr)
	assert.Equal(t, []string{aliceID}, view.Attendees)
	assert.True(t, view.IsMember)
	assert.True(t, view.IsFull)

	rr = api.do(t, http.MethodPost, rsvp, nil, alice)
	assert.Equal(t, http.StatusConflict, rr.Code)
	res := decodeError(t, rr)
	assert.Equal(t, handler.KindAlreadyJoined, res.Error)
	assert.Equal(t, apperror.MsgAlreadyJoined, res.Message)

	rr = api.do(t, http.MethodPost, rsvp, nil, bob)
	assert.Equal(t, http.StatusConflict, rr.Code)
	res = decodeError(t, rr)
	assert.Equal(t, handler.KindUnavailable, res.Error)
	assert.Equal(t, apperror.MsgUnavailable, res.Message)

	// Leaving as a non-member succeeds and changes nothing.
	rr = api.do(t, http.MethodDelete, rsvp, nil, bob)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{aliceID}, decodeRSVP(t, rr).Attendees)

	rr = api.do(t, http.MethodDelete, rsvp, nil, alice)
	require.Equal(t, http.StatusOK, rr.Code)
	view = decodeRSVP(t, rr)
	assert.Empty(t, view.Attendees)
	assert.False(t, view.IsMember)

	rr = api.do(t, http.MethodPost, rsvp, nil, bob)
	assert.Equal(t, http.StatusOK, rr.Code)

	t.Run("join a missing event is unavailable", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/api/events/rsvp/missing", nil, alice)
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, handler.KindUnavailable, decodeError(t, rr).Error)
	})

	t.Run("leave a missing event is not found", func(t *testing.T) {
		rr := api.do(t, http.MethodDelete, "/api/events/rsvp/missing", nil, alice)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("anonymous join is rejected", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, rsvp, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestEventHandler_ConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	api := newTestAPI(t)
	organizer, _ := api.register(t, "organizer")

	const capacity, users = 3, 12
	eventID := api.createEvent(t, organizer, capacity)

	tokens := make([]string, users)
	for i := range tokens {
		tokens[i], _ = api.register(t, "user"+string(rune('a'+i)))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	for _, token := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr := api.do(t, http.MethodPost, "/api/events/rsvp/"+eventID, nil, token)
			mu.Lock()
			statuses[rr.Code]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, statuses[http.StatusOK])
	assert.Equal(t, users-capacity, statuses[http.StatusConflict])

	rr := api.do(t, http.MethodGet, "/api/events/"+eventID, nil, "")
	var view model.EventView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
	assert.Equal(t, capacity, view.AttendeeCount)
	assert.True(t, view.IsFull)
}

func TestEventHandler_Delete(t *testing.T) {
	api := newTestAPI(t)
	alice, _ := api.register(t, "alice")
	bob, _ := api.register(t, "bob")
	eventID := api.createEvent(t, alice, 5)

	rr := api.do(t, http.MethodDelete, "/api/events/"+eventID, nil, bob)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, handler.KindForbidden, decodeError(t, rr).Error)

	rr = api.do(t, http.MethodDelete, "/api/events/"+eventID, nil, alice)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = api.do(t, http.MethodDelete, "/api/events/"+eventID, nil, alice)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/events/"+eventID, nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	for _, path := range []string{"/api/events", "/api/events/my-events"} {
		rr = api.do(t, http.MethodGet, path, nil, alice)
		require.Equal(t, http.StatusOK, rr.Code)
		var views []model.EventView
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&views))
		for _, v := range views {
			assert.NotEqual(t, eventID, v.ID, "%s still lists the deleted event", path)
		}
	}
}
