package ws

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkInvariant 在读锁内校验两个方向一致且没有空集合
func checkInvariant(m *Membership) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for roomID, members := range m.rooms {
		if len(members) == 0 {
			return fmt.Errorf("empty room %s retained", roomID)
		}
		for userID := range members {
			if _, ok := m.users[userID][roomID]; !ok {
				return fmt.Errorf("room %s lists %s but inverse missing", roomID, userID)
			}
		}
	}
	for userID, rooms := range m.users {
		if len(rooms) == 0 {
			return fmt.Errorf("empty user %s retained", userID)
		}
		for roomID := range rooms {
			if _, ok := m.rooms[roomID][userID]; !ok {
				return fmt.Errorf("user %s lists %s but inverse missing", userID, roomID)
			}
		}
	}
	return nil
}

func TestJoinLeaveRoundTrip(t *testing.T) {
	m := NewMembership()
	user, room := uuid.New(), uuid.New()

	assert.True(t, m.Join(user, room))
	assert.False(t, m.Join(user, room))
	assert.Equal(t, []uuid.UUID{user}, m.MembersOf(room))
	assert.Equal(t, []uuid.UUID{room}, m.RoomsOf(user))

	assert.True(t, m.Leave(user, room))
	assert.False(t, m.Leave(user, room))
	assert.Empty(t, m.MembersOf(room))
	assert.Empty(t, m.RoomsOf(user))
	assert.False(t, m.HasRoom(room), "empty room must be pruned")
	assert.Zero(t, m.RoomCount())
}

func TestLeaveKeepsOtherMembers(t *testing.T) {
	m := NewMembership()
	a, b, room := uuid.New(), uuid.New(), uuid.New()
	m.Join(a, room)
	m.Join(b, room)

	m.Leave(a, room)
	assert.Equal(t, []uuid.UUID{b}, m.MembersOf(room))
	assert.True(t, m.HasRoom(room))
}

func TestRemoveUser(t *testing.T) {
	m := NewMembership()
	a, b := uuid.New(), uuid.New()
	r1, r2 := uuid.New(), uuid.New()
	m.Join(a, r1)
	m.Join(a, r2)
	m.Join(b, r2)

	assert.ElementsMatch(t, []uuid.UUID{r1, r2}, m.RemoveUser(a))
	assert.Empty(t, m.RoomsOf(a))
	assert.False(t, m.HasRoom(r1))
	assert.Equal(t, []uuid.UUID{b}, m.MembersOf(r2))
	assert.Empty(t, m.RemoveUser(a))
	require.NoError(t, checkInvariant(m))
}

func TestDistribution(t *testing.T) {
	m := NewMembership()
	r1, r2 := uuid.New(), uuid.New()
	m.Join(uuid.New(), r1)
	m.Join(uuid.New(), r1)
	m.Join(uuid.New(), r2)

	assert.Equal(t, map[uuid.UUID]int{r1: 2, r2: 1}, m.Distribution())
	assert.Equal(t, 2, m.RoomCount())
}

func TestMembershipInvariantConcurrent(t *testing.T) {
	m := NewMembership()
	users := make([]uuid.UUID, 8)
	rooms := make([]uuid.UUID, 4)
	for i := range users {
		users[i] = uuid.New()
	}
	for i := range rooms {
		rooms[i] = uuid.New()
	}

	stop := make(chan struct{})
	violations := make(chan error, 1)
	var checker sync.WaitGroup
	checker.Add(1)
	go func() {
		defer checker.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if err := checkInvariant(m); err != nil {
				select {
				case violations <- err:
				default:
				}
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				u := users[rand.IntN(len(users))]
				r := rooms[rand.IntN(len(rooms))]
				switch rand.IntN(5) {
				case 0, 1:
					m.Join(u, r)
				case 2, 3:
					m.Leave(u, r)
				default:
					m.RemoveUser(u)
				}
			}
		}()
	}
	wg.Wait()
	close(stop)
	checker.Wait()

	select {
	case err := <-violations:
		t.Fatal(err)
	default:
	}
	require.NoError(t, checkInvariant(m))

	for _, r := range rooms {
		for _, u := range m.MembersOf(r) {
			assert.Contains(t, m.RoomsOf(u), r)
		}
	}
}
