package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/persistence"
)

func result(winner models.Team, finished time.Time) models.GameResult {
	return models.GameResult{
		Winner:       winner,
		RoundsPlayed: 1,
		FinalRoster: []models.PlayerView{
			{ID: "p1", Name: "Alice", Role: models.RoleMafia, Team: models.TeamMafia},
		},
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func TestRecordService_ArchiveAndQuery(t *testing.T) {
	svc := NewRecordService(persistence.NewMemoryStore())
	ctx := context.Background()
	now := time.Now()

	rec, err := svc.Archive(ctx, "ROOM1", result(models.TeamTown, now))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	require.NoError(t, svc.ArchiveGame(ctx, "ROOM2", result(models.TeamMafia, now.Add(time.Second))))
	require.NoError(t, svc.ArchiveGame(ctx, "ROOM1", result(models.TeamTown, now.Add(2*time.Second))))

	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "ROOM1", got.RoomCode)
	assert.Equal(t, models.TeamTown, got.Winner)
	assert.Len(t, got.Players, 1)

	_, err = svc.Get(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)

	all, err := svc.Recent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	room1, err := svc.Recent(ctx, "ROOM1", 10)
	require.NoError(t, err)
	assert.Len(t, room1, 2)

	stats, err := svc.TeamStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Games)
	assert.Equal(t, 2, stats.Wins[models.TeamTown])
	assert.Equal(t, 1, stats.Wins[models.TeamMafia])
}
