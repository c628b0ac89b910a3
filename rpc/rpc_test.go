package rpc

import (
	"context"
	"net/rpc"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/mafia/broadcast"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/persistence"
	"github.com/wfunc/mafia/room"
	"github.com/wfunc/mafia/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startRPC(t *testing.T) (*rpc.Client, *room.Manager, *services.RecordService) {
	t.Helper()
	rooms := room.NewRoomManager(broadcast.NewRecorder())
	t.Cleanup(rooms.Close)
	records := services.NewRecordService(persistence.NewMemoryStore())

	srv, err := NewServer("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, srv.Register(NewMafiaService(rooms, records)))
	done := make(chan error, 1)
	go func() { done <- srv.Start() }()
	t.Cleanup(func() {
		srv.Stop()
		assert.NoError(t, <-done)
	})

	client, err := rpc.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, rooms, records
}

func TestMafiaService_Rooms(t *testing.T) {
	client, rooms, _ := startRPC(t)
	ctx := context.Background()
	_, err := rooms.Join(ctx, "alpha", "p1", "Alice")
	require.NoError(t, err)
	_, err = rooms.Join(ctx, "alpha", "p2", "Bob")
	require.NoError(t, err)

	var stats RoomStatsReply
	require.NoError(t, client.Call("MafiaService.RoomStats", &RoomStatsArgs{IncludeCodes: true}, &stats))
	assert.Equal(t, room.Stats{Rooms: 1, Players: 2}, stats.Stats)
	assert.Equal(t, []string{"ALPHA"}, stats.Codes)

	var snap RoomSnapshotReply
	require.NoError(t, client.Call("MafiaService.RoomSnapshot", &RoomSnapshotArgs{RoomCode: "Alpha"}, &snap))
	assert.Equal(t, "ALPHA", snap.Snapshot.Code)
	assert.Equal(t, models.PhaseLobby, snap.Snapshot.Phase)
	assert.Len(t, snap.Snapshot.Players, 2)

	err = client.Call("MafiaService.RoomSnapshot", &RoomSnapshotArgs{RoomCode: "NOPE"}, &snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMafiaService_Records(t *testing.T) {
	client, _, records := startRPC(t)
	ctx := context.Background()
	now := time.Now()
	for i, winner := range []models.Team{models.TeamTown, models.TeamTown, models.TeamMafia} {
		require.NoError(t, records.ArchiveGame(ctx, "ROOM1", models.GameResult{
			Winner:       winner,
			RoundsPlayed: i + 1,
			FinishedAt:   now.Add(time.Duration(i) * time.Second),
		}))
	}

	var recent RecentGamesReply
	require.NoError(t, client.Call("MafiaService.RecentGames", &RecentGamesArgs{RoomCode: "room1", Limit: 2}, &recent))
	require.Len(t, recent.Records, 2)
	assert.Equal(t, 3, recent.Records[0].RoundsPlayed)

	var wins TeamWinsReply
	require.NoError(t, client.Call("MafiaService.TeamWins", &TeamWinsArgs{}, &wins))
	assert.Equal(t, 3, wins.Stats.Games)
	assert.Equal(t, 2, wins.Stats.Wins[models.TeamTown])

	var mafiaOnly TeamWinsReply
	require.NoError(t, client.Call("MafiaService.TeamWins", &TeamWinsArgs{Team: models.TeamMafia}, &mafiaOnly))
	assert.Equal(t, map[models.Team]int{models.TeamMafia: 1}, mafiaOnly.Stats.Wins)
	assert.Equal(t, 3, mafiaOnly.Stats.Games, "games is the overall total")
}

func TestHealthServer(t *testing.T) {
	hs, err := NewHealthServer("127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- hs.Serve() }()

	conn, err := grpc.NewClient(hs.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	hs.SetServing(false)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	hs.Stop()
	assert.NoError(t, <-done)
}
