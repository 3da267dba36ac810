package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/domain"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/service"
)

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice", domain.RoleStaff)
	bob := env.seedUser(t, "bob", domain.RoleStaff)

	thread, err := env.threads.EnsureThread(ctx, alice, service.ThreadCreateInput{
		ParticipantIDs: []int64{bob.ID},
	})
	require.NoError(t, err)

	t.Run("OrderAndLastMessageAt", func(t *testing.T) {
		first, err := env.messages.Send(ctx, alice, thread.ID, "Welcome")
		require.NoError(t, err)
		second, err := env.messages.Send(ctx, bob, thread.ID, "Thanks")
		require.NoError(t, err)

		msgs, err := env.messages.List(ctx, alice, thread.ID, 0, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, first.ID, msgs[0].ID)
		assert.Equal(t, "Welcome", msgs[0].Content)
		assert.Equal(t, second.ID, msgs[1].ID)

		reloaded, err := env.threads.GetThread(ctx, alice, thread.ID)
		require.NoError(t, err)
		assert.WithinDuration(t, second.CreatedAt, reloaded.LastMessageAt, time.Second)
	})

	t.Run("SenderSeedsReadSet", func(t *testing.T) {
		msg, err := env.messages.Send(ctx, alice, thread.ID, "hello")
		require.NoError(t, err)
		assert.True(t, msg.ReadByUser(alice.ID))
		assert.False(t, msg.ReadByUser(bob.ID))
	})

	t.Run("WhitespaceRejected", func(t *testing.T) {
		_, err := env.messages.Send(ctx, alice, thread.ID, "   \n\t ")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("OversizedRejected", func(t *testing.T) {
		_, err := env.messages.Send(ctx, alice, thread.ID, strings.Repeat("a", 5001))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("NonParticipantForbidden", func(t *testing.T) {
		carol := env.seedUser(t, "carol", domain.RoleStaff)
		_, err := env.messages.Send(ctx, carol, thread.ID, "intruding")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("DeletedThreadNotFound", func(t *testing.T) {
		doomed, err := env.threads.EnsureThread(ctx, alice, service.ThreadCreateInput{
			Name:           strptr("doomed"),
			Type:           domain.ThreadGroup,
			ParticipantIDs: []int64{bob.ID},
		})
		require.NoError(t, err)
		require.NoError(t, env.threads.DeleteThread(ctx, alice, doomed.ID))

		_, err = env.messages.Send(ctx, alice, doomed.ID, "too late")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestSendMessageConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice", domain.RoleStaff)
	bob := env.seedUser(t, "bob", domain.RoleStaff)

	thread, err := env.threads.EnsureThread(ctx, alice, service.ThreadCreateInput{
		ParticipantIDs: []int64{bob.ID},
	})
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.messages.Send(ctx, alice, thread.ID, fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := env.messages.List(ctx, alice, thread.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, n)
	for i := 1; i < n; i++ {
		prev, cur := msgs[i-1], msgs[i]
		assert.Less(t, prev.ID, cur.ID)
		assert.False(t, cur.CreatedAt.Before(prev.CreatedAt))
	}
}

func TestSendMessagesParallelThreads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// independent threads must not starve or fail each other, so the sends
	// here deliberately overlap across four distinct threads
	type lane struct {
		actor  *domain.User
		thread *domain.Thread
	}
	var lanes []lane
	for i := 0; i < 4; i++ {
		a := env.seedUser(t, fmt.Sprintf("sender%d", i), domain.RoleStaff)
		b := env.seedUser(t, fmt.Sprintf("peer%d", i), domain.RoleStaff)
		th, err := env.threads.EnsureThread(ctx, a, service.ThreadCreateInput{
			ParticipantIDs: []int64{b.ID},
		})
		require.NoError(t, err)
		lanes = append(lanes, lane{actor: a, thread: th})
	}

	const perThread = 15
	start := make(chan struct{})
	errs := make([]error, len(lanes)*perThread)
	var wg sync.WaitGroup
	for li, l := range lanes {
		for i := 0; i < perThread; i++ {
			wg.Add(1)
			go func(slot int, l lane, i int) {
				defer wg.Done()
				<-start
				_, err := env.messages.Send(ctx, l.actor, l.thread.ID, fmt.Sprintf("msg %d", i))
				errs[slot] = err
			}(li*perThread+i, l, i)
		}
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, l := range lanes {
		msgs, err := env.messages.List(ctx, l.actor, l.thread.ID, 0, 0)
		require.NoError(t, err)
		assert.Len(t, msgs, perThread)
	}
}

func TestMarkRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice", domain.RoleStaff)
	bob := env.seedUser(t, "bob", domain.RoleStaff)

	thread, err := env.threads.EnsureThread(ctx, alice, service.ThreadCreateInput{
		ParticipantIDs: []int64{bob.ID},
	})
	require.NoError(t, err)

	_, err = env.messages.Send(ctx, alice, thread.ID, "one")
	require.NoError(t, err)
	_, err = env.messages.Send(ctx, alice, thread.ID, "two")
	require.NoError(t, err)

	t.Run("CoversExistingMessages", func(t *testing.T) {
		require.NoError(t, env.messages.MarkRead(ctx, bob, thread.ID))

		msgs, err := env.messages.List(ctx, bob, thread.ID, 0, 0)
		require.NoError(t, err)
		for _, m := range msgs {
			assert.True(t, m.ReadByUser(bob.ID), "message %d should be read", m.ID)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		require.NoError(t, env.messages.MarkRead(ctx, bob, thread.ID))
		require.NoError(t, env.messages.MarkRead(ctx, bob, thread.ID))
	})

	t.Run("NoRetroactiveCoverage", func(t *testing.T) {
		later, err := env.messages.Send(ctx, alice, thread.ID, "three")
		require.NoError(t, err)

		msgs, err := env.messages.List(ctx, bob, thread.ID, 0, 0)
		require.NoError(t, err)
		for _, m := range msgs {
			if m.ID == later.ID {
				assert.False(t, m.ReadByUser(bob.ID))
			} else {
				assert.True(t, m.ReadByUser(bob.ID))
			}
		}
	})
}

func TestDeleteMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "admin", domain.RoleAdmin)
	alice := env.seedUser(t, "alice", domain.RoleStaff)
	bob := env.seedUser(t, "bob", domain.RoleStaff)

	thread, err := env.threads.EnsureThread(ctx, alice, service.ThreadCreateInput{
		ParticipantIDs: []int64{bob.ID},
	})
	require.NoError(t, err)

	send := func(t *testing.T, text string) *domain.Message {
		t.Helper()
		m, err := env.messages.Send(ctx, alice, thread.ID, text)
		require.NoError(t, err)
		return m
	}

	t.Run("SenderDeletesWithoutReason", func(t *testing.T) {
		msg := send(t, "oops")
		reason := domain.ReasonSpam
		deleted, err := env.messages.Delete(ctx, alice, msg.ID, &reason)
		require.NoError(t, err)
		assert.True(t, deleted.IsDeleted)
		// a sender's own deletion never records a moderation reason
		assert.Nil(t, deleted.DeleteReason)
		require.NotNil(t, deleted.DeletedBy)
		assert.Equal(t, alice.ID, *deleted.DeletedBy)

		msgs, err := env.messages.List(ctx, alice, thread.ID, 0, 0)
		require.NoError(t, err)
		for _, m := range msgs {
			assert.NotEqual(t, msg.ID, m.ID)
		}
	})

	t.Run("AdminNeedsValidReason", func(t *testing.T) {
		msg := send(t, "offensive")
		_, err := env.messages.Delete(ctx, admin, msg.ID, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		bad := domain.DeleteReason("because")
		_, err = env.messages.Delete(ctx, admin, msg.ID, &bad)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		reason := domain.ReasonHarassment
		deleted, err := env.messages.Delete(ctx, admin, msg.ID, &reason)
		require.NoError(t, err)
		require.NotNil(t, deleted.DeleteReason)
		assert.Equal(t, domain.ReasonHarassment, *deleted.DeleteReason)
		require.NotNil(t, deleted.DeletedBy)
		assert.Equal(t, admin.ID, *deleted.DeletedBy)
	})

	t.Run("OtherParticipantsForbidden", func(t *testing.T) {
		msg := send(t, "mine")
		reason := domain.ReasonOther
		_, err := env.messages.Delete(ctx, bob, msg.ID, &reason)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("DoubleDeleteConflicts", func(t *testing.T) {
		msg := send(t, "once")
		_, err := env.messages.Delete(ctx, alice, msg.ID, nil)
		require.NoError(t, err)
		_, err = env.messages.Delete(ctx, alice, msg.ID, nil)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("ReadSetSurvivesDeletion", func(t *testing.T) {
		msg := send(t, "read then removed")
		require.NoError(t, env.messages.MarkRead(ctx, bob, thread.ID))
		_, err := env.messages.Delete(ctx, alice, msg.ID, nil)
		require.NoError(t, err)

		audited, err := env.messages.Audit(ctx, admin, msg.ID)
		require.NoError(t, err)
		assert.True(t, audited.ReadByUser(alice.ID))
		assert.True(t, audited.ReadByUser(bob.ID))
	})
}

func TestAuditMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.seedUser(t, "admin", domain.RoleAdmin)
	alice := env.seedUser(t, "alice", domain.RoleStaff)
	bob := env.seedUser(t, "bob", domain.RoleStaff)

	thread, err := env.threads.EnsureThread(ctx, alice, service.ThreadCreateInput{
		ParticipantIDs: []int64{bob.ID},
	})
	require.NoError(t, err)

	msg, err := env.messages.Send(ctx, alice, thread.ID, "evidence")
	require.NoError(t, err)
	reason := domain.ReasonInappropriate
	_, err = env.messages.Delete(ctx, admin, msg.ID, &reason)
	require.NoError(t, err)

	t.Run("AdminSeesDeletedRow", func(t *testing.T) {
		audited, err := env.messages.Audit(ctx, admin, msg.ID)
		require.NoError(t, err)
		assert.True(t, audited.IsDeleted)
		assert.Equal(t, "evidence", audited.Content)
		require.NotNil(t, audited.DeleteReason)
		assert.Equal(t, domain.ReasonInappropriate, *audited.DeleteReason)
		assert.NotNil(t, audited.DeletedAt)
	})

	t.Run("NonAdminForbidden", func(t *testing.T) {
		_, err := env.messages.Audit(ctx, alice, msg.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("UnknownMessage", func(t *testing.T) {
		_, err := env.messages.Audit(ctx, admin, 9999)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestListMessagesPaging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice", domain.RoleStaff)
	bob := env.seedUser(t, "bob", domain.RoleStaff)

	thread, err := env.threads.EnsureThread(ctx, alice, service.ThreadCreateInput{
		ParticipantIDs: []int64{bob.ID},
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := env.messages.Send(ctx, alice, thread.ID, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	page, err := env.messages.List(ctx, alice, thread.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "msg 0", page[0].Content)

	next, err := env.messages.List(ctx, alice, thread.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, "msg 2", next[0].Content)

	// an absurd limit clamps to the configured page size
	all, err := env.messages.List(ctx, alice, thread.ID, 100000, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
