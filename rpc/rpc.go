package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/mafia/logger"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/room"
	"github.com/wfunc/mafia/services"
	"github.com/wfunc/mafia/state"
)

const callTimeout = 5 * time.Second

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer creates a new RPC server with its own service registry.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
		rpc:      rpc.NewServer(),
	}, nil
}

// Register publishes the receiver's exported methods.
func (s *Server) Register(rcvr any) error {
	return s.rpc.Register(rcvr)
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start begins listening for RPC requests. It returns when the listener is closed.
func (s *Server) Start() error {
	logger.Log.Infof("RPC server listening on %s", s.listener.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return nil
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomDirectory is the part of room.Manager the RPC service reads.
type RoomDirectory interface {
	Stats() room.Stats
	Codes() []string
	Snapshot(ctx context.Context, code string) (state.Snapshot, error)
}

// MafiaService exposes read-only operational queries over net/rpc.
type MafiaService struct {
	rooms   RoomDirectory
	records *services.RecordService
}

// NewMafiaService creates a new MafiaService.
func NewMafiaService(rooms RoomDirectory, records *services.RecordService) *MafiaService {
	return &MafiaService{rooms: rooms, records: records}
}

type RoomStatsArgs struct {
	IncludeCodes bool
}

type RoomStatsReply struct {
	Stats room.Stats
	Codes []string
}

// RoomStats reports open rooms and seated players.
func (ms *MafiaService) RoomStats(args *RoomStatsArgs, reply *RoomStatsReply) error {
	reply.Stats = ms.rooms.Stats()
	if args.IncludeCodes {
		reply.Codes = ms.rooms.Codes()
	}
	return nil
}

type RoomSnapshotArgs struct {
	RoomCode string
}

type RoomSnapshotReply struct {
	Snapshot state.Snapshot
}

// RoomSnapshot returns the public view of one room.
func (ms *MafiaService) RoomSnapshot(args *RoomSnapshotArgs, reply *RoomSnapshotReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	snap, err := ms.rooms.Snapshot(ctx, args.RoomCode)
	if err != nil {
		return err
	}
	reply.Snapshot = snap
	return nil
}

type RecentGamesArgs struct {
	RoomCode string
	Limit    int
}

type RecentGamesReply struct {
	Records []models.GameRecord
}

// RecentGames lists archived games, newest first.
func (ms *MafiaService) RecentGames(args *RecentGamesArgs, reply *RecentGamesReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	records, err := ms.records.Recent(ctx, room.NormalizeCode(args.RoomCode), args.Limit)
	if err != nil {
		return err
	}
	reply.Records = records
	return nil
}

type TeamWinsArgs struct {
	// Team limits Wins to one team when set. Games stays the total over
	// all archived games so Wins/Games is that team's win rate.
	Team models.Team
}

type TeamWinsReply struct {
	Stats services.TeamStats
}

// TeamWins reports wins per team across all archived games.
func (ms *MafiaService) TeamWins(args *TeamWinsArgs, reply *TeamWinsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	stats, err := ms.records.TeamStats(ctx)
	if err != nil {
		return err
	}
	if args.Team != "" {
		stats.Wins = map[models.Team]int{args.Team: stats.Wins[args.Team]}
	}
	reply.Stats = stats
	return nil
}
