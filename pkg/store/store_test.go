package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/termgate/termgate/pkg/models"
)

func newTestStore(t *testing.T) *GORMStore {
	t.Helper()
	s, err := New(&Config{URL: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTestUser(t *testing.T, s *GORMStore, email string) *models.User {
	t.Helper()
	ctx := context.Background()
	user := &models.User{
		Email:        email,
		Name:         "Test User",
		PasswordHash: "$2a$12$notarealhashbutlongenough",
	}
	if _, err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func createTestProfile(t *testing.T, s *GORMStore, userID, name string) *models.SSHProfile {
	t.Helper()
	ctx := context.Background()
	profile := &models.SSHProfile{
		UserID:               userID,
		Name:                 name,
		Host:                 "example.com",
		Port:                 22,
		Username:             "deploy",
		AuthMethod:           models.AuthMethodPassword,
		EncryptedCredentials: "sealed",
	}
	if _, err := s.CreateProfile(ctx, profile); err != nil {
		t.Fatalf("failed to create profile: %v", err)
	}
	return profile
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := createTestUser(t, s, "alice@example.com")

	got, err := s.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("email = %q", got.Email)
	}

	byEmail, err := s.GetUserByEmail(ctx, "ALICE@Example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if byEmail.ID != user.ID {
		t.Errorf("lookup by email returned wrong user")
	}
}

func TestCreateDuplicateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createTestUser(t, s, "dup@example.com")
	_, err := s.CreateUser(ctx, &models.User{
		Email:        "Dup@Example.com",
		PasswordHash: "hash",
	})
	if !errors.Is(err, models.ErrDuplicateUser) {
		t.Errorf("expected ErrDuplicateUser, got %v", err)
	}
}

func TestUserNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetUser(ctx, "missing"); !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
	if err := s.UpdateLastLogin(ctx, "missing"); !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound from UpdateLastLogin, got %v", err)
	}
}

func TestUpdateLastLogin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := createTestUser(t, s, "login@example.com")
	if user.LastLogin != nil {
		t.Fatal("fresh user should have nil LastLogin")
	}
	if err := s.UpdateLastLogin(ctx, user.ID); err != nil {
		t.Fatalf("UpdateLastLogin: %v", err)
	}
	got, _ := s.GetUser(ctx, user.ID)
	if got.LastLogin == nil {
		t.Error("LastLogin not set")
	}
}

func TestUpdatePreferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := createTestUser(t, s, "prefs@example.com")
	got, err := s.UpdatePreferences(ctx, user.ID, models.JSONMap{"theme": "dark", "fontSize": float64(14)})
	if err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}
	if got.Preferences["theme"] != "dark" {
		t.Errorf("preferences = %+v", got.Preferences)
	}
}

func TestProfileLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "profiles@example.com")

	profile := createTestProfile(t, s, user.ID, "staging")

	t.Run("get", func(t *testing.T) {
		got, err := s.GetProfile(ctx, user.ID, profile.ID)
		if err != nil {
			t.Fatalf("GetProfile: %v", err)
		}
		if got.Name != "staging" || got.EncryptedCredentials != "sealed" {
			t.Errorf("unexpected profile: %+v", got)
		}
	})

	t.Run("name conflict among active", func(t *testing.T) {
		_, err := s.CreateProfile(ctx, &models.SSHProfile{
			UserID:     user.ID,
			Name:       "staging",
			Host:       "other.example.com",
			Port:       22,
			Username:   "root",
			AuthMethod: models.AuthMethodPassword,
		})
		if !errors.Is(err, models.ErrProfileNameConflict) {
			t.Errorf("expected ErrProfileNameConflict, got %v", err)
		}
	})

	t.Run("partial update", func(t *testing.T) {
		host := "new-host.example.com"
		port := 2222
		got, err := s.UpdateProfile(ctx, user.ID, profile.ID, &ProfileUpdate{Host: &host, Port: &port})
		if err != nil {
			t.Fatalf("UpdateProfile: %v", err)
		}
		if got.Host != host || got.Port != port {
			t.Errorf("update not applied: %+v", got)
		}
		if got.Name != "staging" || got.Username != "deploy" {
			t.Errorf("untouched fields changed: %+v", got)
		}
	})

	t.Run("soft delete", func(t *testing.T) {
		if err := s.DeleteProfile(ctx, user.ID, profile.ID); err != nil {
			t.Fatalf("DeleteProfile: %v", err)
		}
		if _, err := s.GetProfile(ctx, user.ID, profile.ID); !errors.Is(err, models.ErrProfileNotFound) {
			t.Errorf("deleted profile still visible: %v", err)
		}
		// Row must survive for session history.
		var count int64
		s.DB().Model(&models.SSHProfile{}).Where("id = ?", profile.ID).Count(&count)
		if count != 1 {
			t.Errorf("soft delete removed the row")
		}
	})

	t.Run("name reusable after delete", func(t *testing.T) {
		if _, err := s.CreateProfile(ctx, &models.SSHProfile{
			UserID:     user.ID,
			Name:       "staging",
			Host:       "example.com",
			Port:       22,
			Username:   "deploy",
			AuthMethod: models.AuthMethodPassword,
		}); err != nil {
			t.Errorf("name should be free after soft delete: %v", err)
		}
	})
}

func TestProfileOwnershipIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, s, "alice@example.com")
	bob := createTestUser(t, s, "bob@example.com")
	profile := createTestProfile(t, s, alice.ID, "alice-box")

	if _, err := s.GetProfile(ctx, bob.ID, profile.ID); !errors.Is(err, models.ErrProfileNotFound) {
		t.Errorf("cross-user get should report not found, got %v", err)
	}
	if err := s.DeleteProfile(ctx, bob.ID, profile.ID); !errors.Is(err, models.ErrProfileNotFound) {
		t.Errorf("cross-user delete should report not found, got %v", err)
	}

	profiles, err := s.ListProfiles(ctx, bob.ID)
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(profiles) != 0 {
		t.Errorf("bob sees %d foreign profiles", len(profiles))
	}
}

func TestListProfilesOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "order@example.com")

	old := createTestProfile(t, s, user.ID, "old")
	time.Sleep(5 * time.Millisecond)
	newer := createTestProfile(t, s, user.ID, "newer")

	if err := s.TouchProfile(ctx, user.ID, old.ID); err != nil {
		t.Fatalf("TouchProfile: %v", err)
	}

	profiles, err := s.ListProfiles(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	// old was used, newer never was, so old sorts first.
	if profiles[0].ID != old.ID || profiles[1].ID != newer.ID {
		t.Errorf("unexpected order: %s, %s", profiles[0].Name, profiles[1].Name)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "sessions@example.com")
	profile := createTestProfile(t, s, user.ID, "box")

	session := &models.TerminalSession{
		ID:        "sess-1",
		UserID:    user.ID,
		ProfileID: profile.ID,
		Status:    models.StatusConnecting,
	}
	if err := s.UpsertSession(ctx, session); err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}

	if err := s.UpdateSessionStatus(ctx, user.ID, "sess-1", models.StatusConnected); err != nil {
		t.Fatalf("UpdateSessionStatus: %v", err)
	}
	got, err := s.GetSession(ctx, user.ID, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != models.StatusConnected {
		t.Errorf("status = %q", got.Status)
	}

	// Re-upsert under the same ID updates in place.
	session.Status = models.StatusDisconnected
	if err := s.UpsertSession(ctx, session); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	sessions, err := s.ListSessions(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("expected 1 session, got %d", len(sessions))
	}

	if err := s.RenameSession(ctx, user.ID, "sess-1", "prod shell"); err != nil {
		t.Fatalf("RenameSession: %v", err)
	}
	got, _ = s.GetSession(ctx, user.ID, "sess-1")
	if got.Title != "prod shell" {
		t.Errorf("title = %q", got.Title)
	}

	if err := s.UpdateSessionStatus(ctx, user.ID, "missing", models.StatusError); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestQueriesPersistAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "assist@example.com")

	for i := 0; i < 3; i++ {
		_, err := s.CreateQuery(ctx, &models.AssistantQuery{
			UserID:     user.ID,
			Mode:       "translate",
			Prompt:     "list files",
			Response:   "ls -la",
			Commands:   models.StringList{"ls -la"},
			Confidence: 0.9,
		})
		if err != nil {
			t.Fatalf("CreateQuery: %v", err)
		}
	}

	queries, err := s.ListQueries(ctx, user.ID, 2)
	if err != nil {
		t.Fatalf("ListQueries: %v", err)
	}
	if len(queries) != 2 {
		t.Errorf("limit not applied: got %d", len(queries))
	}
	if len(queries[0].Commands) != 1 || queries[0].Commands[0] != "ls -la" {
		t.Errorf("commands round trip failed: %+v", queries[0].Commands)
	}
}
