package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/agehcx/hiking-app-sub000/internal/apperrors"
	"github.com/agehcx/hiking-app-sub000/internal/user"

	"github.com/pashagolub/pgxmock/v3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type memStore struct {
	users     map[string]user.User
	createErr error
	touched   int
}

func newMemStore() *memStore {
	return &memStore{users: map[string]user.User{}}
}

func (m *memStore) Create(_ context.Context, u user.User) (user.User, error) {
	if m.createErr != nil {
		return user.User{}, m.createErr
	}
	u.ID = fmt.Sprintf("00000000-0000-4000-8000-%012d", len(m.users)+1)
	u.CreatedAt = time.Now()
	m.users[u.ID] = u
	return u, nil
}

func (m *memStore) FindConflict(_ context.Context, email, username string) (string, error) {
	for _, u := range m.users {
		if u.Email == email {
			return "email", nil
		}
	}
	for _, u := range m.users {
		if u.Username == username {
			return "username", nil
		}
	}
	return "", nil
}

func (m *memStore) FindActiveByEmail(_ context.Context, email string) (user.User, error) {
	for _, u := range m.users {
		if u.Email == email && u.IsActive {
			return u, nil
		}
	}
	return user.User{}, apperrors.NotFound("User not found")
}

func (m *memStore) FindActiveByID(_ context.Context, id string) (user.User, error) {
	u, ok := m.users[id]
	if !ok || !u.IsActive {
		return user.User{}, apperrors.NotFound("User not found")
	}
	return u, nil
}

func (m *memStore) TouchLastLogin(_ context.Context, id string) (time.Time, error) {
	m.touched++
	return time.Now(), nil
}

func newTestService(store UserStore) *Service {
	return NewService(store, testTokens(), minBcryptCost, zap.NewNop())
}

func TestNewServiceEnforcesMinimumCost(t *testing.T) {
	for _, cost := range []int{0, bcrypt.MinCost, minBcryptCost - 1, bcrypt.MaxCost + 1} {
		if got := NewService(newMemStore(), testTokens(), cost, zap.NewNop()).cost; got != defaultBcryptCost {
			t.Fatalf("cost %d: expected %d, got %d", cost, defaultBcryptCost, got)
		}
	}
	if got := NewService(newMemStore(), testTokens(), 11, zap.NewNop()).cost; got != 11 {
		t.Fatalf("expected configured cost 11, got %d", got)
	}
}

func TestRegisterHashMeetsMinimumCost(t *testing.T) {
	store := newMemStore()
	u, _, err := NewService(store, testTokens(), bcrypt.MinCost, zap.NewNop()).Register(context.Background(), validRegister())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(u.PasswordHash))
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if cost < minBcryptCost {
		t.Fatalf("hash cost %d below %d", cost, minBcryptCost)
	}
}

func validRegister() RegisterRequest {
	return RegisterRequest{Email: "a@x.com", Username: "abc", Password: "123456", FirstName: "A", LastName: "B"}
}

func TestRegisterAndLogin(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	u, tokens, err := svc.Register(context.Background(), validRegister())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Email != "a@x.com" || u.Experience != user.ExperienceBeginner || tokens.AccessToken == "" {
		t.Fatalf("unexpected registration: %+v %+v", u, tokens)
	}
	if u.PasswordHash == "123456" {
		t.Fatalf("password stored in clear text")
	}

	logged, loginTokens, err := svc.Login(context.Background(), LoginRequest{Email: " A@X.COM ", Password: "123456"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.LastLogin == nil || store.touched != 1 {
		t.Fatalf("expected last login to be updated")
	}
	claims, err := svc.Tokens().Verify(loginTokens.AccessToken)
	if err != nil || claims.UserID != u.ID || claims.Username != "abc" {
		t.Fatalf("unexpected claims: %+v %v", claims, err)
	}
}

func TestRegisterConflictNamesField(t *testing.T) {
	svc := newTestService(newMemStore())
	if _, _, err := svc.Register(context.Background(), validRegister()); err != nil {
		t.Fatalf("register: %v", err)
	}

	req := validRegister()
	req.Email, req.Username = "A@X.COM", "xyz"
	_, _, err := svc.Register(context.Background(), req)
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Kind != apperrors.KindConflict || appErr.Field != "email" {
		t.Fatalf("expected email conflict, got %v", err)
	}
	if appErr.Message != "User with this email already exists" {
		t.Fatalf("unexpected message: %q", appErr.Message)
	}

	req.Email, req.Username = "b@x.com", "ABC"
	_, _, err = svc.Register(context.Background(), req)
	if appErr, ok := apperrors.As(err); !ok || appErr.Field != "username" {
		t.Fatalf("expected username conflict, got %v", err)
	}
}

func TestRegisterDuplicateRaceBecomesConflict(t *testing.T) {
	store := newMemStore()
	store.createErr = apperrors.DuplicateKey("username")
	_, _, err := newTestService(store).Register(context.Background(), validRegister())
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Kind != apperrors.KindConflict || appErr.Field != "username" {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*RegisterRequest)
		message string
	}{
		{"missing first name", func(r *RegisterRequest) { r.FirstName = " " }, "All fields are required: email, password, firstName, lastName, username"},
		{"missing password", func(r *RegisterRequest) { r.Password = "" }, "All fields are required: email, password, firstName, lastName, username"},
		{"bad email", func(r *RegisterRequest) { r.Email = "nope" }, "Please provide a valid email address"},
		{"short password", func(r *RegisterRequest) { r.Password = "12345" }, "Password must be at least 6 characters long"},
		{"short username", func(r *RegisterRequest) { r.Username = "ab" }, "Username must be between 3 and 30 characters"},
		{"long username", func(r *RegisterRequest) { r.Username = "abcdefghijklmnopqrstuvwxyz12345" }, "Username must be between 3 and 30 characters"},
	}
	svc := newTestService(newMemStore())
	for _, tc := range cases {
		req := validRegister()
		tc.mutate(&req)
		_, _, err := svc.Register(context.Background(), req)
		if !apperrors.Is(err, apperrors.KindValidation) || err.Error() != tc.message {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
	}

	req := validRegister()
	req.Experience = "legend"
	if _, _, err := svc.Register(context.Background(), req); !apperrors.Is(err, apperrors.KindValidation) {
		t.Fatalf("expected experience validation, got %v", err)
	}
}

func TestRegisterHashFailure(t *testing.T) {
	old := hashPasswordFn
	hashPasswordFn = func([]byte, int) ([]byte, error) { return nil, errors.New("entropy") }
	defer func() { hashPasswordFn = old }()

	_, _, err := newTestService(newMemStore()).Register(context.Background(), validRegister())
	if !apperrors.Is(err, apperrors.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	u, _, err := svc.Register(context.Background(), validRegister())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	_, _, wrongPassword := svc.Login(context.Background(), LoginRequest{Email: "a@x.com", Password: "wrong-password"})
	_, _, unknown := svc.Login(context.Background(), LoginRequest{Email: "nouser@x.com", Password: "whatever"})

	inactive := store.users[u.ID]
	inactive.IsActive = false
	store.users[u.ID] = inactive
	_, _, suspended := svc.Login(context.Background(), LoginRequest{Email: "a@x.com", Password: "123456"})

	for _, err := range []error{wrongPassword, unknown, suspended} {
		if !apperrors.Is(err, apperrors.KindUnauthorized) || err.Error() != "Invalid email or password" {
			t.Fatalf("unexpected login error: %v", err)
		}
	}
}

func TestLoginValidation(t *testing.T) {
	svc := newTestService(newMemStore())
	if _, _, err := svc.Login(context.Background(), LoginRequest{Email: "a@x.com"}); !apperrors.Is(err, apperrors.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, _, err := svc.Login(context.Background(), LoginRequest{Email: "nope", Password: "123456"})
	if !apperrors.Is(err, apperrors.KindValidation) || err.Error() != "Please provide a valid email address" {
		t.Fatalf("expected email validation error, got %v", err)
	}
}

func TestRefresh(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	u, tokens, err := svc.Register(context.Background(), validRegister())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	pair, err := svc.Refresh(context.Background(), tokens.RefreshToken)
	if err != nil || pair.AccessToken == "" {
		t.Fatalf("refresh: %v", err)
	}

	if _, err := svc.Refresh(context.Background(), tokens.AccessToken); !apperrors.Is(err, apperrors.KindAuthentication) {
		t.Fatalf("expected access token to be rejected, got %v", err)
	}
	if _, err := svc.Refresh(context.Background(), ""); !apperrors.Is(err, apperrors.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	gone := store.users[u.ID]
	gone.IsActive = false
	store.users[u.ID] = gone
	if _, err := svc.Refresh(context.Background(), tokens.RefreshToken); !apperrors.Is(err, apperrors.KindAuthentication) {
		t.Fatalf("expected inactive user to be rejected, got %v", err)
	}
}

func TestRegisterAndLoginAgainstPostgres(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	svc := newTestService(user.NewStore(mock))

	mock.ExpectQuery(`SELECT email, username FROM users`).
		WithArgs("a@x.com", "abc").
		WillReturnRows(pgxmock.NewRows([]string{"email", "username"}))
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	u, _, err := svc.Register(context.Background(), validRegister())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	created := time.Now()
	mock.ExpectQuery(`FROM users WHERE email = \$1 AND is_active`).
		WithArgs("a@x.com").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "email", "username", "first_name", "last_name", "profile_picture", "bio", "experience",
			"preferences", "stats", "achievements", "location", "is_active", "last_login", "email_verified",
			"version", "created_at", "updated_at", "password_hash",
		}).AddRow(u.ID, "a@x.com", "abc", "A", "B", nil, "", "beginner",
			[]byte(`{}`), []byte(`{}`), []byte(`[]`), nil, true, nil, false,
			0, created, created, u.PasswordHash))
	mock.ExpectExec(`UPDATE users SET last_login`).
		WithArgs(u.ID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if _, _, err := svc.Login(context.Background(), LoginRequest{Email: "a@x.com", Password: "123456"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
