package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/wfunc/mafia/broadcast"
	"github.com/wfunc/mafia/config"
	"github.com/wfunc/mafia/logger"
	"github.com/wfunc/mafia/monitor"
	"github.com/wfunc/mafia/persistence"
	"github.com/wfunc/mafia/room"
	"github.com/wfunc/mafia/rpc"
	"github.com/wfunc/mafia/server"
	"github.com/wfunc/mafia/services"
	"github.com/wfunc/mafia/session"
	"github.com/wfunc/mafia/state"
	"github.com/wfunc/mafia/timer"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "mafia",
		Short:         "Mafia game server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "directory containing config.yaml")
	root.AddCommand(serveCmd(), narrateCmd())

	if err := root.Execute(); err != nil {
		logger.Log.Errorf("%v", err)
		logger.Sync()
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the multiplayer server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	// Initialize Database
	db, err := persistence.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Log.Infof("Database %q ready", cfg.Database.Driver)

	timers := timer.NewTimerManager(cfg.Game.TimerResolution)
	defer timers.Stop()

	sessions := session.NewManager()
	mon := monitor.NewMonitor("mafia")
	records := services.NewRecordService(db)
	rooms := room.NewRoomManager(broadcast.NewSessionBroadcaster(sessions),
		room.WithScheduler(timers),
		room.WithObserver(mon),
		room.WithArchiver(records),
		room.WithBinder(sessions),
		room.WithMachineOptions(
			state.WithMinPlayers(cfg.Game.MinPlayers),
			state.WithRequireReady(cfg.Game.RequireReady),
			state.WithTimings(state.Timings{
				RoleReveal: cfg.Game.RoleRevealTime,
				Night:      cfg.Game.NightTime,
				Day:        cfg.Game.DayTime,
				Voting:     cfg.Game.VotingTime,
			}),
		),
	)
	defer rooms.Close()
	rooms.StartSweeper(cfg.Server.SweepInterval, cfg.Server.IdleRoomTTL)

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		return err
	}
	if err := rpcServer.Register(rpc.NewMafiaService(rooms, records)); err != nil {
		return err
	}
	health, err := rpc.NewHealthServer(cfg.Server.GRPCAddress)
	if err != nil {
		rpcServer.Stop()
		return err
	}
	gameServer := server.NewGameServer(cfg.Server, rooms, sessions, records, mon)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(gameServer.Start)
	g.Go(rpcServer.Start)
	g.Go(health.Serve)
	g.Go(func() error {
		<-ctx.Done()
		logger.Log.Info("Shutting down")
		health.SetServing(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := gameServer.Shutdown(shutdownCtx)
		rpcServer.Stop()
		health.Stop()
		return err
	})
	return g.Wait()
}
