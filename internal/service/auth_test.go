package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/auth"
	"golang.org/x/crypto/bcrypt"
)

// newTestAuthService wires AuthService with fakes and the cheapest bcrypt cost.
func newTestAuthService(t *testing.T, repo *fakeUserRepo) *AuthService {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	ps := auth.NewPasswordServiceWithCost(bcrypt.MinCost)
	return NewAuthService(repo, ts, ps, discardLogger())
}

// =========================================================================
// REGISTER
// =========================================================================

func TestRegister_Success(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	result, err := svc.Register(context.Background(), "alice", "Alice@Example.com", "secret1")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if result.User.ID == "" {
		t.Error("Register() did not assign an ID")
	}
	if result.User.Email != "alice@example.com" {
		t.Errorf("Email = %q, want lower-cased %q", result.User.Email, "alice@example.com")
	}
	if result.User.PasswordHash == "secret1" || result.User.PasswordHash == "" {
		t.Error("Register() must store a bcrypt hash, not the password")
	}

	userID, err := svc.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if userID != result.User.ID {
		t.Errorf("token subject = %q, want %q", userID, result.User.ID)
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name      string
		username  string
		email     string
		password  string
		wantField string
	}{
		{"empty username", "  ", "a@example.com", "secret1", "username"},
		{"long username", strings.Repeat("u", MaxUsernameLength+1), "a@example.com", "secret1", "username"},
		{"empty email", "alice", "", "secret1", "email"},
		{"malformed email", "alice", "not-an-email", "secret1", "email"},
		{"short password", "alice", "a@example.com", "12345", "password"},
		{"password over 72 bytes", "alice", "a@example.com", strings.Repeat("p", 73), "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestAuthService(t, newFakeUserRepo())

			_, err := svc.Register(context.Background(), tt.username, tt.email, tt.password)

			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Register() error = %v, want validation error", err)
			}
			if appErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.wantField)
			}
		})
	}
}

func TestRegister_DuplicateEmailIsConflict(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "alice@example.com", "secret1"); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	_, err := svc.Register(ctx, "alice2", "ALICE@example.com", "secret2")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second Register() error = %v, want ErrConflict", err)
	}
}

func TestRegister_RepositoryError(t *testing.T) {
	repo := newFakeUserRepo()
	repo.createErr = errors.New("database is on fire")
	svc := newTestAuthService(t, repo)

	_, err := svc.Register(context.Background(), "alice", "alice@example.com", "secret1")
	if !errors.Is(err, repo.createErr) {
		t.Fatalf("Register() error = %v, want the repository error", err)
	}
}

// =========================================================================
// LOGIN
// =========================================================================

func TestLogin(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice", "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	t.Run("correct password", func(t *testing.T) {
		result, err := svc.Login(ctx, " Alice@Example.com ", "secret1")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if result.User.ID != registered.User.ID {
			t.Errorf("Login() user = %q, want %q", result.User.ID, registered.User.ID)
		}
		if result.Token == "" {
			t.Error("Login() returned empty token")
		}
	})

	failures := map[string][2]string{
		"wrong password": {"alice@example.com", "wrong-password"},
		"unknown email":  {"bob@example.com", "secret1"},
		"empty password": {"alice@example.com", ""},
	}
	for name, creds := range failures {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Login(ctx, creds[0], creds[1])
			if !errors.Is(err, apperror.ErrUnauthenticated) {
				t.Fatalf("Login() error = %v, want ErrUnauthenticated", err)
			}
			if err.Error() != msgInvalidCredentials {
				t.Errorf("Login() message = %q, want the generic %q", err.Error(), msgInvalidCredentials)
			}
		})
	}
}

func TestLogin_PasswordBeyondBcryptLimit(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()
	password := strings.Repeat("k", auth.MaxPasswordBytes)

	if _, err := svc.Register(ctx, "longpass", "longpass@example.com", password); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := svc.Login(ctx, "longpass@example.com", password); err != nil {
		t.Fatalf("Login(exact password) error = %v", err)
	}

	// bcrypt only reads the first 72 bytes, so anything longer must not match.
	for _, suffix := range []string{"x", "-anything-at-all"} {
		_, err := svc.Login(ctx, "longpass@example.com", password+suffix)
		if !errors.Is(err, apperror.ErrUnauthenticated) {
			t.Errorf("Login(password+%q) error = %v, want ErrUnauthenticated", suffix, err)
		}
	}
}

func TestLogin_GitHubOnlyAccountCannotUsePassword(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()

	if _, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 1, Login: "octo", Email: "octo@example.com"}); err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}

	_, err := svc.Login(ctx, "octo@example.com", "any-password")
	if !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Fatalf("Login() error = %v, want ErrUnauthenticated", err)
	}
}

// =========================================================================
// GITHUB SIGN-IN
// =========================================================================

func TestLoginOrRegisterGitHub_NewUser(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID: 42, Login: "octocat", Name: "The Octocat", Email: "Octocat@GitHub.com",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}

	if result.User.Username != "The Octocat" {
		t.Errorf("Username = %q, want %q", result.User.Username, "The Octocat")
	}
	if result.User.Email != "octocat@github.com" {
		t.Errorf("Email = %q, want %q", result.User.Email, "octocat@github.com")
	}
	if result.User.GitHubID == nil || *result.User.GitHubID != 42 {
		t.Errorf("GitHubID = %v, want 42", result.User.GitHubID)
	}
	if result.Token == "" {
		t.Error("LoginOrRegisterGitHub() returned empty token")
	}
}

func TestLoginOrRegisterGitHub_HiddenEmailUsesNoReply(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 7, Login: "Shy"})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}

	if result.User.Email != "shy@users.noreply.github.com" {
		t.Errorf("Email = %q, want noreply address", result.User.Email)
	}
	if result.User.Username != "Shy" {
		t.Errorf("Username = %q, want login as fallback", result.User.Username)
	}
}

func TestLoginOrRegisterGitHub_SecondLoginKeepsAccount(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()

	first, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 99, Login: "old-login"})
	if err != nil {
		t.Fatalf("first login error: %v", err)
	}

	second, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 99, Login: "new-login"})
	if err != nil {
		t.Fatalf("second login error: %v", err)
	}

	if second.User.ID != first.User.ID {
		t.Errorf("second login created a new account: %q != %q", second.User.ID, first.User.ID)
	}
	if second.User.Username != "new-login" {
		t.Errorf("Username after update = %q, want %q", second.User.Username, "new-login")
	}
}

func TestLoginOrRegisterGitHub_EmailLinkedToAnotherAccount(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()

	owner, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 10, Login: "owner", Email: "shared@example.com"})
	if err != nil {
		t.Fatalf("first sign-in error: %v", err)
	}

	_, err = svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 11, Login: "other", Email: "shared@example.com"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("LoginOrRegisterGitHub() error = %v, want ErrConflict", err)
	}

	user, err := svc.GetUserByID(ctx, owner.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.GitHubID == nil || *user.GitHubID != 10 {
		t.Errorf("GitHubID = %v, want 10", user.GitHubID)
	}
}

func TestLoginOrRegisterGitHub_NilGitHubUser(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	if _, err := svc.LoginOrRegisterGitHub(context.Background(), nil); err == nil {
		t.Fatal("LoginOrRegisterGitHub() should return error for nil GitHubUser")
	}
}

func TestLoginOrRegisterGitHub_RepositoryError(t *testing.T) {
	repo := newFakeUserRepo()
	repo.upsertErr = errors.New("database is on fire")
	svc := newTestAuthService(t, repo)

	_, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "user"})
	if !errors.Is(err, repo.upsertErr) {
		t.Fatalf("LoginOrRegisterGitHub() error = %v, want the repository error", err)
	}
}

// =========================================================================
// LOOKUPS
// =========================================================================

func TestGetUserByID(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())
	ctx := context.Background()

	registered, err := svc.Register(ctx, "findme", "findme@example.com", "secret1")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	user, err := svc.GetUserByID(ctx, registered.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Username != "findme" {
		t.Errorf("Username = %q, want %q", user.Username, "findme")
	}

	if _, err := svc.GetUserByID(ctx, "non-existent-id"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetUserByID(ctx, ""); !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Errorf("GetUserByID(\"\") error = %v, want ErrUnauthenticated", err)
	}
}

func TestValidateToken_InvalidToken(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	_, err := svc.ValidateToken("this.is.garbage")
	if !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Fatalf("ValidateToken() error = %v, want ErrUnauthenticated", err)
	}
}
