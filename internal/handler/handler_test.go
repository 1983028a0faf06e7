package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/eventhub/internal/auth"
	"github.com/sakif/eventhub/internal/handler"
	"github.com/sakif/eventhub/internal/model"
	sqliteRepo "github.com/sakif/eventhub/internal/repository/sqlite"
	"github.com/sakif/eventhub/internal/service"
)

// testAPI is the full API on an in-memory database, routed the same way
// the server routes it.
type testAPI struct {
	router http.Handler
	tokens *auth.TokenService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	users, events := db.Users(), db.Events()
	authService := service.NewAuthService(users, tokens, auth.NewPasswordServiceWithCost(bcrypt.MinCost), logger)

	authHandler := handler.NewAuthHandler(authService, nil, tokens.TTL(), false, logger)
	eventHandler := handler.NewEventHandler(
		service.NewEventService(events, users, logger),
		service.NewAdmissionController(events, logger),
		logger,
	)
	profileHandler := handler.NewProfileHandler(service.NewProfileService(users, events, logger), logger)

	r := chi.NewRouter()
	r.Get("/health", handler.Health(db, logger))
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(tokens))
			r.Get("/events", eventHandler.HandleList)
			r.Get("/events/{id}", eventHandler.HandleGet)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/auth/profile", authHandler.HandleMe)
			r.Get("/profile", profileHandler.HandleGet)
			r.Post("/events", eventHandler.HandleCreate)
			r.Get("/events/my-events", eventHandler.HandleListMine)
			r.Delete("/events/{id}", eventHandler.HandleDelete)
			r.Post("/events/rsvp/{id}", eventHandler.HandleJoin)
			r.Delete("/events/rsvp/{id}", eventHandler.HandleLeave)
		})
	})

	return &testAPI{router: r, tokens: tokens}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(auth.TokenHeader, token)
	}

	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

type authBody struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// register signs up a user and returns their token and ID.
func (a *testAPI) register(t *testing.T, username string) (string, string) {
	t.Helper()

	rr := a.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
	}, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var res authBody
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	return res.Token, res.User.ID
}

// createEvent creates an event with the given capacity and returns its ID.
func (a *testAPI) createEvent(t *testing.T, token string, capacity int) string {
	t.Helper()

	rr := a.do(t, http.MethodPost, "/api/events", map[string]any{
		"title":       "Go Meetup",
		"description": "Talks and pizza",
		"date":        "2026-12-01T19:00",
		"location":    "Dhaka",
		"capacity":    capacity,
		"category":    model.CategoryTechnology,
	}, token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var view model.EventView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
	return view.ID
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var res handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	return res
}

func decodeRSVP(t *testing.T, rr *httptest.ResponseRecorder) model.EventView {
	t.Helper()
	var res struct {
		Message string          `json:"message"`
		Event   model.EventView `json:"event"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.NotEmpty(t, res.Message)
	return res.Event
}

func newRequest(method, path string) (*http.Request, *httptest.ResponseRecorder) {
	return httptest.NewRequest(method, path, nil), httptest.NewRecorder()
}
