package navigator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type managerClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *managerClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *managerClock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManager(t *testing.T, clock *managerClock, opts ManagerOptions) *Manager {
	t.Helper()
	store := newStore()
	seedRanked(store, 4)
	opts.Session.Logger = quietLogger()
	opts.Session.Now = clock.Now
	m, err := NewManager(Static(store), opts)
	require.NoError(t, err)
	return m
}

func TestManager_Lifecycle(t *testing.T) {
	clock := &managerClock{now: time.UnixMilli(t0)}
	m := newManager(t, clock, ManagerOptions{})

	s, err := m.Create("")
	require.NoError(t, err)
	assert.Len(t, s.ID(), 36)
	assert.Equal(t, Navigating, s.State())
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, []string{s.ID()}, m.IDs())

	require.NoError(t, m.Delete(s.ID()))
	assert.Equal(t, Idle, s.State())
	assert.ErrorIs(t, m.Delete(s.ID()), ErrSessionNotFound)

	_, err = m.Get(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_ExpireIdle(t *testing.T) {
	clock := &managerClock{now: time.UnixMilli(t0)}
	m := newManager(t, clock, ManagerOptions{IdleTTL: time.Minute})

	stale, err := m.Create("")
	require.NoError(t, err)

	clock.Add(45 * time.Second)
	active, err := m.Create("")
	require.NoError(t, err)

	clock.Add(30 * time.Second)
	_, err = active.Advance(Forward)
	require.NoError(t, err)

	assert.Equal(t, 1, m.ExpireIdle())
	_, err = m.Get(stale.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, Idle, stale.State())

	_, err = m.Get(active.ID())
	assert.NoError(t, err)
}

func TestManager_MaxSessions(t *testing.T) {
	clock := &managerClock{now: time.UnixMilli(t0)}
	m := newManager(t, clock, ManagerOptions{MaxSessions: 2})

	for i := 0; i < 2; i++ {
		_, err := m.Create("")
		require.NoError(t, err)
	}
	_, err := m.Create("")
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestManager_InvalidSchedule(t *testing.T) {
	_, err := NewManager(Static(newStore()), ManagerOptions{ExpirySchedule: "not a schedule"})
	assert.Error(t, err)
}

func TestManager_StopClearsSessions(t *testing.T) {
	clock := &managerClock{now: time.UnixMilli(t0)}
	m := newManager(t, clock, ManagerOptions{})
	m.Start()

	s, err := m.Create("")
	require.NoError(t, err)

	m.Stop()
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, Idle, s.State())
}
