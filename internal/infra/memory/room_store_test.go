package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
	"github.com/jhaanurag/remote-keyboard-web/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock 手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRoomStore_Append_AssignsIncreasingIDs(t *testing.T) {
	store := NewRoomStore()

	first := store.Append("1234", domain.EventTypeLetter, "a")
	second := store.Append("1234", domain.EventTypeWord, "hi ")
	third := store.Append("1234", domain.EventTypeBlock, "")

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, int64(3), third.ID)
	assert.Equal(t, "", third.Payload, "空 payload 应原样保存")

	info := store.GetOrCreate("1234")
	assert.Equal(t, int64(4), info.NextEventID)
	assert.Equal(t, 3, info.EventCount)
}

func TestRoomStore_Append_TrimsOldestFirst(t *testing.T) {
	store := NewRoomStore()
	const total = repository.DefaultMaxEventsPerRoom + 250

	for i := 0; i < total; i++ {
		store.Append("abcd", domain.EventTypeLetter, "x")
	}

	events := store.ListSince("abcd", 0)
	require.Len(t, events, repository.DefaultMaxEventsPerRoom)
	assert.Equal(t, int64(251), events[0].ID, "最旧的 250 个事件应被裁掉")
	assert.Equal(t, int64(total), events[len(events)-1].ID)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].ID+1, events[i].ID)
	}

	// 被裁掉的 id 不会复用
	next := store.Append("abcd", domain.EventTypeLetter, "y")
	assert.Equal(t, int64(total+1), next.ID)
}

func TestRoomStore_ListSince_IdempotentAndMonotone(t *testing.T) {
	store := NewRoomStore(WithMaxEvents(5))
	for i := 0; i < 3; i++ {
		store.Append("r", domain.EventTypeLetter, "k")
	}

	a := store.ListSince("r", 1)
	b := store.ListSince("r", 1)
	assert.Equal(t, a, b)
	require.Len(t, a, 2)

	store.Append("r", domain.EventTypeLetter, "z")
	newer := store.ListSince("r", a[len(a)-1].ID)
	require.Len(t, newer, 1)
	assert.Equal(t, int64(4), newer[0].ID)
	assert.Equal(t, "z", newer[0].Payload)

	assert.Empty(t, store.ListSince("r", 100))
	assert.Len(t, store.ListSince("r", -7), 4, "负数游标视为 0")
}

func TestRoomStore_ListSince_ReturnsCopy(t *testing.T) {
	store := NewRoomStore()
	store.Append("r", domain.EventTypeLetter, "a")

	events := store.ListSince("r", 0)
	events[0].Payload = "mutated"

	assert.Equal(t, "a", store.ListSince("r", 0)[0].Payload)
}

func TestRoomStore_RoomIsolation(t *testing.T) {
	store := NewRoomStore()
	store.Append("A", domain.EventTypeLetter, "a")
	store.Append("A", domain.EventTypeLetter, "b")

	assert.Empty(t, store.ListSince("B", 0))
	bEvent := store.Append("B", domain.EventTypeLetter, "c")
	assert.Equal(t, int64(1), bEvent.ID, "每个房间的 id 独立编号")
	assert.Len(t, store.ListSince("A", 0), 2)
}

func TestRoomStore_PruneExpired_ResetsRoom(t *testing.T) {
	clock := newFakeClock()
	store := NewRoomStore(WithClock(clock.Now))

	store.Append("old", domain.EventTypeLetter, "a")
	store.Append("old", domain.EventTypeLetter, "b")
	clock.Advance(20 * time.Minute)
	store.GetOrCreate("fresh")

	// old 最后一次访问在 31 分钟前，fresh 在 11 分钟前
	clock.Advance(11 * time.Minute)
	removed := store.PruneExpired(clock.Now())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())

	_, err := store.Peek("old")
	assert.ErrorIs(t, err, repository.ErrRoomNotFound)

	recreated := store.Append("old", domain.EventTypeLetter, "c")
	assert.Equal(t, int64(1), recreated.ID, "重新创建的房间 id 从 1 开始")
}

func TestRoomStore_PruneExpired_KeepsTouchedRooms(t *testing.T) {
	clock := newFakeClock()
	store := NewRoomStore(WithClock(clock.Now))

	store.Append("room", domain.EventTypeLetter, "a")
	clock.Advance(25 * time.Minute)
	store.ListSince("room", 0) // 轮询也算访问
	clock.Advance(25 * time.Minute)

	assert.Equal(t, 0, store.PruneExpired(clock.Now()))
	assert.Len(t, store.ListSince("room", 0), 1)
}

func TestRoomStore_Peek_DoesNotTouch(t *testing.T) {
	clock := newFakeClock()
	store := NewRoomStore(WithClock(clock.Now))

	store.GetOrCreate("room")
	created := clock.Now()
	clock.Advance(10 * time.Minute)

	info, err := store.Peek("room")
	require.NoError(t, err)
	assert.Equal(t, created, info.LastTouchedAt)

	_, err = store.Peek("missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 1, store.Len(), "Peek 不应创建房间")
}

func TestRoomStore_PruneExpired_SkipsLockedRoom(t *testing.T) {
	clock := newFakeClock()
	store := NewRoomStore(WithClock(clock.Now))
	store.GetOrCreate("busy")
	clock.Advance(time.Hour)

	room := store.acquire("busy")
	// acquire 刷新了 lastTouched，这里把它改回过期状态以验证 TryLock 路径
	room.lastTouched = clock.Now().Add(-time.Hour)

	assert.Equal(t, 0, store.PruneExpired(clock.Now()), "持有锁的房间不应被清理")
	room.mu.Unlock()

	assert.Equal(t, 1, store.PruneExpired(clock.Now()))
}

func TestRoomStore_HeldRoomDoesNotBlockOtherRooms(t *testing.T) {
	store := NewRoomStore()
	store.GetOrCreate("A")

	room := store.acquire("A")
	defer room.mu.Unlock()

	done := make(chan domain.Event, 1)
	go func() {
		done <- store.Append("B", domain.EventTypeLetter, "b")
	}()

	select {
	case ev := <-done:
		assert.Equal(t, int64(1), ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("房间 A 的锁阻塞了房间 B 的写入")
	}
}

func TestRoomStore_ConcurrentAppends(t *testing.T) {
	store := NewRoomStore()
	const writers, perWriter = 8, 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				store.Append("shared", domain.EventTypeLetter, "k")
			}
		}()
	}
	wg.Wait()

	events := store.ListSince("shared", 0)
	require.Len(t, events, repository.DefaultMaxEventsPerRoom)
	for i := 1; i < len(events); i++ {
		assert.Less(t, events[i-1].ID, events[i].ID)
	}
	assert.Equal(t, int64(writers*perWriter), events[len(events)-1].ID)
}
