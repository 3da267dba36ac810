package service_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/domain"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/service"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/store/sqlite"
)

// testEnv wires the services against a throwaway SQLite database so the
// tests exercise the real SQL paths.
type testEnv struct {
	users        domain.UserRepository
	threads      *service.ThreadService
	messages     *service.MessageService
	participants domain.ParticipantRepository
	messageRepo  domain.MessageRepository
	threadRepo   domain.ThreadRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	users := sqlite.NewUserRepo(db)
	threadRepo := sqlite.NewThreadRepo(db)
	participants := sqlite.NewParticipantRepo(db)
	messageRepo := sqlite.NewMessageRepo(db)

	locks := service.NewThreadLocks()
	log := zap.NewNop().Sugar()

	return &testEnv{
		users:        users,
		threads:      service.NewThreadService(threadRepo, participants, users, locks, log),
		messages:     service.NewMessageService(threadRepo, participants, messageRepo, locks, log, 200),
		participants: participants,
		messageRepo:  messageRepo,
		threadRepo:   threadRepo,
	}
}

func (e *testEnv) seedUser(t *testing.T, name string, role domain.Role) *domain.User {
	t.Helper()
	u := &domain.User{
		Name:           name,
		Email:          name + "@example.com",
		HashedPassword: "x",
		Role:           role,
		IsActive:       true,
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func strptr(s string) *string { return &s }
