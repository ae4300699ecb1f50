package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"tokopos/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)
	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestCreateCashierStoresPasswordHash(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)
	cashier, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{
		Username: "kasirbaru",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}
	if cashier.Username != "kasirbaru" {
		t.Fatalf("unexpected username %s", cashier.Username)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == "kasirbaru" {
			found = &users[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected cashier to be saved")
	}
	if found.Password == "pass1234" {
		t.Fatalf("expected cashier password to be hashed")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	_, err = manager.Login(context.Background(), domain.LoginRequest{
		Username: "kasirbaru",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("login with hashed cashier failed: %v", err)
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	hash, err := hashPassword("rahasia1")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"kasirlama": {
				Username:  "kasirlama",
				Password:  hash,
				Role:      "cashier",
				Active:    false,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)
	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "kasirlama", Password: "rahasia1"})
	if err != errInactiveAccount {
		t.Fatalf("expected inactive account error, got %v", err)
	}
	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "kasirlama", Password: "salah"})
	if err != errInvalidCredentials {
		t.Fatalf("expected invalid credentials for wrong password, got %v", err)
	}
	if store.updates != 0 {
		t.Fatalf("expected hashed password to be left alone, got %d updates", store.updates)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager(context.Background(), "secret-a", time.Hour, nil)
	token, err := issuer.sign("admin", "admin", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := NewAuthManager(context.Background(), "secret-b", time.Hour, nil).ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to fail")
	}

	expired, err := issuer.sign("admin", "admin", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := issuer.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to fail")
	}

	actor, err := issuer.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestListCashiersSkipsAdmins(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{
		"admin": {Username: "admin", Password: "admin123", Role: "admin", Active: true},
	}}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)

	for _, name := range []string{"kasirb", "kasira"} {
		if _, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: name, Password: "pass1234"}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	if _, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "KasirA", Password: "pass1234"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}

	cashiers := manager.ListCashiers(context.Background())
	if len(cashiers) != 2 {
		t.Fatalf("expected 2 cashiers, got %d", len(cashiers))
	}
	if cashiers[0].Username != "kasira" || cashiers[1].Username != "kasirb" {
		t.Fatalf("expected cashiers sorted by username, got %+v", cashiers)
	}
}

func TestParseTokenRequiresIssuerAudienceAndRole(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, nil)
	forge := func(issuer, audience, role string) string {
		claims := sessionClaims{
			RegisteredClaims: jwtlib.RegisteredClaims{
				Subject:   "admin",
				Issuer:    issuer,
				Audience:  jwtlib.ClaimStrings{audience},
				ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Role: role,
		}
		token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return token
	}

	if _, err := manager.ParseToken(forge(tokenIssuer, tokenAudience, domain.RoleCashier)); err != nil {
		t.Fatalf("expected well-formed token to parse, got %v", err)
	}
	for name, token := range map[string]string{
		"issuer":   forge("someone-else", tokenAudience, domain.RoleCashier),
		"audience": forge(tokenIssuer, "backoffice", domain.RoleCashier),
		"role":     forge(tokenIssuer, tokenAudience, "owner"),
	} {
		if _, err := manager.ParseToken(token); err != errInvalidToken {
			t.Fatalf("expected token with foreign %s to fail, got %v", name, err)
		}
	}
}

func TestLoginReloadsUsersAfterInterval(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)
	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return clock }
	manager.loadedAt = clock

	hash, err := hashPassword("rahasia1")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	_ = store.CreateUser(context.Background(), domain.UserAccount{Username: "kasirbaru", Password: hash, Role: domain.RoleCashier, Active: true})

	req := domain.LoginRequest{Username: "kasirbaru", Password: "rahasia1"}
	if _, err := manager.Login(context.Background(), req); err != errInvalidCredentials {
		t.Fatalf("expected cached users to be used inside the reload interval, got %v", err)
	}

	clock = clock.Add(userReloadEvery)
	if _, err := manager.Login(context.Background(), req); err != nil {
		t.Fatalf("expected account from store after reload, got %v", err)
	}
}

func TestCreateCashierRejectsDuplicateAndBadNames(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, &userStoreStub{})

	if _, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "kasir.satu", Password: "pass1234"}); err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	if _, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: " Kasir.Satu ", Password: "pass1234"}); err != errUsernameTaken {
		t.Fatalf("expected duplicate username error, got %v", err)
	}
	if _, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Username: "kasir satu", Password: "pass1234"}); err != errInvalidUsername {
		t.Fatalf("expected invalid username error, got %v", err)
	}
}
