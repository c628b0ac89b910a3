package room

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/state"
	"github.com/wfunc/mafia/timer"
)

// MockSink 记录所有事件，房间循环和测试协程会并发访问
type MockSink struct {
	mu     sync.Mutex
	room   []models.Event
	player map[string][]models.Event
}

func newMockSink() *MockSink {
	return &MockSink{player: make(map[string][]models.Event)}
}

func (s *MockSink) PublishToRoom(code string, ev models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = append(s.room, ev)
}

func (s *MockSink) PublishToPlayer(code, playerID string, ev models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player[playerID] = append(s.player[playerID], ev)
}

func (s *MockSink) lastFor(playerID string) (models.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := s.player[playerID]
	if len(evs) == 0 {
		return models.Event{}, false
	}
	return evs[len(evs)-1], true
}

type MockObserver struct {
	mu       sync.Mutex
	opened   int
	closed   int
	handled  int
	rejected int
	winners  []models.Team
}

func (o *MockObserver) RoomOpened() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened++
}

func (o *MockObserver) RoomClosed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
}

func (o *MockObserver) IntentHandled(kind models.IntentKind, elapsed time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handled++
	if err != nil {
		o.rejected++
	}
}

func (o *MockObserver) GameFinished(winner models.Team) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.winners = append(o.winners, winner)
}

func (o *MockObserver) counts() (opened, closed, handled, rejected int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened, o.closed, o.handled, o.rejected
}

type MockArchiver struct {
	mu      sync.Mutex
	results map[string]models.GameResult
}

func (a *MockArchiver) ArchiveGame(ctx context.Context, roomCode string, result models.GameResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.results == nil {
		a.results = make(map[string]models.GameResult)
	}
	a.results[roomCode] = result
	return nil
}

func (a *MockArchiver) get(code string) (models.GameResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.results[code]
	return r, ok
}

// MockBinder 记录每名玩家的绑定历史
type MockBinder struct {
	mu      sync.Mutex
	current map[string]string
	history map[string][]string
}

func newMockBinder() *MockBinder {
	return &MockBinder{current: make(map[string]string), history: make(map[string][]string)}
}

func (b *MockBinder) BindRoom(playerID, code string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	previous := b.current[playerID]
	b.current[playerID] = code
	b.history[playerID] = append(b.history[playerID], code)
	return previous
}

func (b *MockBinder) get(playerID string) (string, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current[playerID], append([]string(nil), b.history[playerID]...)
}

// noShuffle 保持牌序：黑手党、侦探、医生、村民
type noShuffle struct{}

func (noShuffle) Shuffle(int, func(i, j int)) {}

func dispatch(t *testing.T, m *Manager, code string, kind models.IntentKind, actor, target string) error {
	t.Helper()
	return m.Dispatch(context.Background(), models.Intent{Kind: kind, RoomCode: code, ActorID: actor, TargetID: target})
}

func TestRoomManager_JoinCreatesRoomCaseInsensitive(t *testing.T) {
	obs := &MockObserver{}
	manager := NewRoomManager(newMockSink(), WithObserver(obs))
	defer manager.Close()
	ctx := context.Background()

	code, err := manager.Join(ctx, "abc12", "p1", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "ABC12", code)

	again, err := manager.Join(ctx, " Abc12 ", "p2", "Bob")
	require.NoError(t, err)
	assert.Equal(t, code, again)

	r, ok := manager.GetRoom("aBc12")
	require.True(t, ok)
	assert.Equal(t, "ABC12", r.Code)

	snap, err := manager.Snapshot(ctx, "abc12")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseLobby, snap.Phase)
	assert.Equal(t, "p1", snap.HostID)
	assert.Len(t, snap.Players, 2)

	assert.Equal(t, Stats{Rooms: 1, Players: 2}, manager.Stats())
	opened, _, _, _ := obs.counts()
	assert.Equal(t, 1, opened)
}

func TestRoomManager_JoinGeneratesCode(t *testing.T) {
	manager := NewRoomManager(newMockSink())
	defer manager.Close()

	code, err := manager.Join(context.Background(), "", "p1", "Alice")
	require.NoError(t, err)
	assert.Len(t, code, codeLength)
	assert.True(t, validCode(code))
	_, ok := manager.GetRoom(code)
	assert.True(t, ok)
}

func TestRoomManager_JoinRejections(t *testing.T) {
	sink := newMockSink()
	manager := NewRoomManager(sink)
	defer manager.Close()
	ctx := context.Background()

	_, err := manager.Join(ctx, "bad-code!", "p1", "Alice")
	require.ErrorIs(t, err, models.ErrIllegalAction)
	ev, ok := sink.lastFor("p1")
	require.True(t, ok)
	assert.Equal(t, models.EventError, ev.Type)

	_, err = manager.Join(ctx, "ROOM1", "p1", "Alice")
	require.NoError(t, err)
	_, err = manager.Join(ctx, "ROOM2", "p1", "Alice")
	require.ErrorIs(t, err, models.ErrIllegalAction)
	_, exists := manager.GetRoom("ROOM2")
	assert.False(t, exists, "failed join must not leave an empty room behind")

	// 同名被拒绝，但已存在的房间不受影响
	_, err = manager.Join(ctx, "ROOM1", "p2", "alice")
	require.ErrorIs(t, err, models.ErrIllegalAction)
	_, exists = manager.GetRoom("ROOM1")
	assert.True(t, exists)
}

func TestRoomManager_JoinBindsOnlyOnSuccess(t *testing.T) {
	binder := newMockBinder()
	manager := NewRoomManager(newMockSink(),
		WithBinder(binder),
		WithMachineOptions(state.WithRequireReady(false)),
	)
	defer manager.Close()
	ctx := context.Background()

	code, err := manager.Join(ctx, "", "p1", "Alice")
	require.NoError(t, err)
	current, _ := binder.get("p1")
	assert.Equal(t, code, current)

	// 已在房间中的玩家不能再创建新房间
	_, err = manager.Join(ctx, "", "p1", "Alice")
	require.ErrorIs(t, err, models.ErrIllegalAction)
	assert.Equal(t, 1, manager.Stats().Rooms)

	for i, name := range []string{"Bob", "Carol"} {
		_, err := manager.Join(ctx, code, fmt.Sprintf("p%d", i+2), name)
		require.NoError(t, err)
	}
	require.NoError(t, dispatch(t, manager, code, models.IntentStartGame, "p1", ""))

	_, err = manager.Join(ctx, code, "p4", "Dave")
	require.ErrorIs(t, err, models.ErrIllegalAction)
	current, history := binder.get("p4")
	assert.Empty(t, current, "rejected joiner is unbound again")
	assert.Equal(t, []string{code, ""}, history)
	_, bound := manager.RoomOf("p4")
	assert.False(t, bound)
}

func TestRoomManager_DispatchUnknownRoom(t *testing.T) {
	sink := newMockSink()
	manager := NewRoomManager(sink)
	defer manager.Close()

	err := dispatch(t, manager, "NOPE", models.IntentSetReady, "p1", "")
	require.ErrorIs(t, err, models.ErrNotFound)

	ev, ok := sink.lastFor("p1")
	require.True(t, ok)
	assert.Equal(t, "notFound", ev.Payload.(models.ErrorMsg).Kind)

	_, err = manager.Snapshot(context.Background(), "NOPE")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRoomManager_LeaveTearsDownEmptyRoom(t *testing.T) {
	obs := &MockObserver{}
	manager := NewRoomManager(newMockSink(), WithObserver(obs))
	defer manager.Close()
	ctx := context.Background()

	code, err := manager.Join(ctx, "LEAVE", "p1", "Alice")
	require.NoError(t, err)
	_, err = manager.Join(ctx, "LEAVE", "p2", "Bob")
	require.NoError(t, err)
	r, _ := manager.GetRoom(code)

	require.NoError(t, dispatch(t, manager, code, models.IntentLeaveRoom, "p1", ""))
	snap, err := manager.Snapshot(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "p2", snap.HostID, "host passes to the next player")
	_, bound := manager.RoomOf("p1")
	assert.False(t, bound)

	require.NoError(t, dispatch(t, manager, code, models.IntentLeaveRoom, "p2", ""))
	assert.Eventually(t, r.Closed, time.Second, 5*time.Millisecond)
	_, exists := manager.GetRoom(code)
	assert.False(t, exists)
	assert.Equal(t, Stats{}, manager.Stats())
	_, closed, _, _ := obs.counts()
	assert.Equal(t, 1, closed)

	// 同一个房间码可以重新使用
	again, err := manager.Join(ctx, code, "p3", "Carol")
	require.NoError(t, err)
	assert.Equal(t, code, again)
}

func TestRoomManager_ConcurrentDispatchIsSerialized(t *testing.T) {
	obs := &MockObserver{}
	manager := NewRoomManager(newMockSink(), WithObserver(obs))
	defer manager.Close()
	ctx := context.Background()

	const n = 20
	code, err := manager.Join(ctx, "BUSY", "p0", "Host")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i)
			if _, err := manager.Join(ctx, code, id, "Player "+id); err != nil {
				errs <- err
				return
			}
			errs <- manager.Dispatch(ctx, models.Intent{Kind: models.IntentSetReady, RoomCode: code, ActorID: id, Ready: true})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snap, err := manager.Snapshot(ctx, code)
	require.NoError(t, err)
	require.Len(t, snap.Players, n+1)
	for _, p := range snap.Players {
		if p.ID != "p0" {
			assert.True(t, p.Ready, p.ID)
		}
	}
	_, _, handled, rejected := obs.counts()
	assert.Equal(t, 2*n+1, handled)
	assert.Zero(t, rejected)
}

func TestRoomManager_GameOverArchives(t *testing.T) {
	obs := &MockObserver{}
	archiver := &MockArchiver{}
	manager := NewRoomManager(newMockSink(),
		WithObserver(obs),
		WithArchiver(archiver),
		WithMachineOptions(state.WithShuffler(noShuffle{}), state.WithRequireReady(false)),
	)
	defer manager.Close()
	ctx := context.Background()

	ids := []string{"p1", "p2", "p3"}
	for _, id := range ids {
		_, err := manager.Join(ctx, "ENDS", id, "Name "+id)
		require.NoError(t, err)
	}
	cfg := models.RoleConfig{Mafia: 1}
	require.NoError(t, manager.Dispatch(ctx, models.Intent{Kind: models.IntentUpdateRoleConfig, RoomCode: "ends", ActorID: "p1", Config: &cfg}))
	require.NoError(t, dispatch(t, manager, "ends", models.IntentStartGame, "p1", ""))
	require.NoError(t, dispatch(t, manager, "ends", models.IntentAdvancePhase, "p1", ""))
	// p1 是黑手党，杀死 p2 后人数持平
	require.NoError(t, dispatch(t, manager, "ends", models.IntentSubmitNightAction, "p1", "p2"))

	require.Eventually(t, func() bool {
		_, ok := archiver.get("ENDS")
		return ok
	}, time.Second, 5*time.Millisecond)
	result, _ := archiver.get("ENDS")
	assert.Equal(t, models.TeamMafia, result.Winner)
	assert.Equal(t, 1, result.RoundsPlayed)

	obs.mu.Lock()
	assert.Equal(t, []models.Team{models.TeamMafia}, obs.winners)
	obs.mu.Unlock()
}

func TestRoomManager_DisconnectAndSweep(t *testing.T) {
	manager := NewRoomManager(newMockSink())
	defer manager.Close()
	ctx := context.Background()

	code, err := manager.Join(ctx, "IDLE", "p1", "Alice")
	require.NoError(t, err)
	busy, err := manager.Join(ctx, "BUSY", "p2", "Bob")
	require.NoError(t, err)

	assert.Zero(t, manager.Sweep(ctx, time.Now().Add(time.Hour), time.Minute), "connected rooms stay")

	manager.Disconnect(ctx, "p1")
	assert.Zero(t, manager.Sweep(ctx, time.Now(), time.Minute), "not idle long enough")

	// 重连后记录仍在
	_, err = manager.Join(ctx, code, "p1", "Alice")
	require.NoError(t, err)
	manager.Disconnect(ctx, "p1")

	assert.Equal(t, 1, manager.Sweep(ctx, time.Now().Add(time.Hour), time.Minute))
	_, exists := manager.GetRoom(code)
	assert.False(t, exists)
	_, exists = manager.GetRoom(busy)
	assert.True(t, exists)
	_, bound := manager.RoomOf("p1")
	assert.False(t, bound)
}

func TestRoomManager_PhaseTimersResolveWithPartialData(t *testing.T) {
	timers := timer.NewTimerManager(5 * time.Millisecond)
	defer timers.Stop()

	sink := newMockSink()
	manager := NewRoomManager(sink,
		WithScheduler(timers),
		WithMachineOptions(
			state.WithShuffler(noShuffle{}),
			state.WithRequireReady(false),
			state.WithTimings(state.Timings{
				RoleReveal: 20 * time.Millisecond,
				Night:      20 * time.Millisecond,
				Day:        20 * time.Millisecond,
				Voting:     20 * time.Millisecond,
			}),
		),
	)
	defer manager.Close()
	ctx := context.Background()

	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		_, err := manager.Join(ctx, "TICK", id, "Name "+id)
		require.NoError(t, err)
	}
	cfg := models.RoleConfig{Mafia: 1}
	require.NoError(t, manager.Dispatch(ctx, models.Intent{Kind: models.IntentUpdateRoleConfig, RoomCode: "TICK", ActorID: "p1", Config: &cfg}))
	require.NoError(t, dispatch(t, manager, "TICK", models.IntentStartGame, "p1", ""))

	// 无人行动：夜晚无人死亡，投票无人出局，回合继续推进
	require.Eventually(t, func() bool {
		snap, err := manager.Snapshot(ctx, "TICK")
		return err == nil && snap.Round >= 2
	}, 2*time.Second, 10*time.Millisecond)

	snap, err := manager.Snapshot(ctx, "TICK")
	require.NoError(t, err)
	for _, p := range snap.Players {
		assert.True(t, p.Alive, p.ID)
	}
}

func TestRoom_DoAfterClose(t *testing.T) {
	manager := NewRoomManager(newMockSink())
	r, err := manager.CreateRoom()
	require.NoError(t, err)

	manager.Close()
	assert.True(t, r.Closed())
	err = r.Do(context.Background(), func(*state.Machine) error { return nil })
	assert.ErrorIs(t, err, ErrRoomClosed)
}
