package authpw

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"notekeeper/api/internal/store"
)

type fakeUserStore struct {
	createUserFn     func(context.Context, store.User) (store.User, error)
	getUserByEmailFn func(context.Context, string) (store.User, error)
}

func (f *fakeUserStore) CreateUser(ctx context.Context, user store.User) (store.User, error) {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return user, nil
}

func (f *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}

func TestSignUpHashesPasswordAndNormalizesEmail(t *testing.T) {
	var created store.User
	fs := &fakeUserStore{
		createUserFn: func(_ context.Context, user store.User) (store.User, error) {
			created = user
			return user, nil
		},
	}
	svc := NewService(fs)

	user, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "  Avery@Example.COM ",
		Password:    "correct horse",
		DisplayName: " Avery ",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	if created.Email != "avery@example.com" {
		t.Fatalf("expected lowercased trimmed email, got %q", created.Email)
	}
	if created.DisplayName != "Avery" {
		t.Fatalf("expected trimmed display name, got %q", created.DisplayName)
	}
	if created.PasswordHash == "correct horse" || created.PasswordHash == "" {
		t.Fatal("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("correct horse")); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
	if !strings.HasPrefix(user.ID, "usr") {
		t.Fatalf("expected generated user id, got %q", user.ID)
	}
}

func TestSignUpValidation(t *testing.T) {
	svc := NewService(&fakeUserStore{})

	cases := []SignUpRequest{
		{Email: "", Password: "longenough", DisplayName: "A"},
		{Email: "a@b.com", Password: "", DisplayName: "A"},
		{Email: "a@b.com", Password: "short", DisplayName: "A"},
		{Email: "a@b.com", Password: "longenough", DisplayName: ""},
		{Email: strings.Repeat("a", 250) + "@example.com", Password: "longenough", DisplayName: "A"},
	}
	for i, req := range cases {
		if _, err := svc.SignUp(context.Background(), req); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestSignUpPropagatesDuplicateEmail(t *testing.T) {
	fs := &fakeUserStore{
		createUserFn: func(context.Context, store.User) (store.User, error) {
			return store.User{}, &store.DuplicateError{Kind: "user", Field: "email"}
		},
	}
	svc := NewService(fs)

	_, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "a@b.com",
		Password:    "longenough",
		DisplayName: "A",
	})
	var dup *store.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
}

func TestSignInVerifiesPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	fs := &fakeUserStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			if email != "avery@example.com" {
				return store.User{}, sql.ErrNoRows
			}
			return store.User{ID: "usr-1", Email: email, PasswordHash: string(hash)}, nil
		},
	}
	svc := NewService(fs)

	user, err := svc.SignIn(context.Background(), " Avery@Example.com ", "correct horse")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if user.ID != "usr-1" {
		t.Fatalf("expected usr-1, got %q", user.ID)
	}

	if _, err := svc.SignIn(context.Background(), "avery@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.SignIn(context.Background(), "ghost@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}
