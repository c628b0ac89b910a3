package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/mafia/config"
	"github.com/wfunc/mafia/logger"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/monitor"
	"github.com/wfunc/mafia/network"
	"github.com/wfunc/mafia/room"
	"github.com/wfunc/mafia/services"
	"github.com/wfunc/mafia/session"
)

const (
	intentTimeout   = 5 * time.Second
	maxPlayerIDSize = 64
)

type GameServer struct {
	cfg            config.ServerConfig
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	records        *services.RecordService
	monitor        *monitor.Monitor
	httpServer     *http.Server
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
}

func NewGameServer(cfg config.ServerConfig, rooms *room.Manager, sessions *session.Manager, records *services.RecordService, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		roomManager:    rooms,
		sessionManager: sessions,
		records:        records,
		monitor:        mon,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler 路由
func (s *GameServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if s.monitor != nil {
		r.Handle("/metrics", s.monitor.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/rooms", s.handleCreateRoomHTTP)
		r.Get("/rooms/{code}", s.handleGetRoom)
		r.Get("/records", s.handleRecords)
		r.Get("/records/{id}", s.handleRecord)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// Start 阻塞直到 Shutdown
func (s *GameServer) Start() error {
	logger.Log.Infof("Game server listening on %s", s.cfg.HTTPAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *GameServer) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
	err := s.httpServer.Shutdown(ctx)
	// websocket 连接已被接管，需要单独关闭
	s.sessionManager.CloseAll()
	return err
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn, stablePlayerID(r.URL.Query().Get("player_id")))
}

// stablePlayerID 客户端保存的 id 用于重连，缺失或格式不对时生成新的
func stablePlayerID(id string) string {
	if id != "" && len(id) <= maxPlayerIDSize {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	return uuid.NewString()
}

func (s *GameServer) handleConnection(conn *websocket.Conn, playerID string) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.NewString(), wsConn)
	sess.PlayerID = playerID
	sess.SetRateLimit(s.cfg.IntentRate, s.cfg.IntentBurst)

	// 同一玩家的新连接顶掉旧连接
	if old := s.sessionManager.Add(sess); old != nil {
		logger.Log.Infof("Player %s reconnected, closing session %s", playerID, old.GetID())
		old.Close()
	}
	if code, ok := s.roomManager.RoomOf(playerID); ok {
		sess.SetRoomCode(code)
	}
	if s.monitor != nil {
		s.monitor.IncOnlinePlayers()
	}

	logger.Log.Infof("New connection from %s, session ID: %s, player ID: %s", wsConn.RemoteAddr(), sess.GetID(), playerID)

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		if s.monitor != nil {
			s.monitor.DecOnlinePlayers()
		}
		if s.sessionManager.Remove(sess.GetID()) {
			ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
			s.roomManager.Disconnect(ctx, playerID)
			cancel()
			// 断线处理期间玩家可能已经重连
			if current, ok := s.sessionManager.GetByPlayerID(playerID); ok && current.RoomCode() != "" {
				s.join(current, current.RoomCode(), "")
			}
		}
		wsConn.Close()
	}()

	s.sendJSON(sess, network.MsgTypeWelcome, network.Welcome{PlayerID: playerID, RoomCode: sess.RoomCode()})
	// 断线重连：重新加入原房间，私有状态会重新下发
	if code := sess.RoomCode(); code != "" {
		s.join(sess, code, "")
	}

	if s.cfg.Heartbeat > 0 {
		wsConn.SetHeartbeat(s.cfg.Heartbeat)
	}

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}
		packet, err := wsConn.ReadPacket()
		if err != nil {
			return
		}
		if s.cfg.Heartbeat > 0 {
			wsConn.SetHeartbeat(s.cfg.Heartbeat)
		}
		if s.monitor != nil {
			s.monitor.IncMessagesReceived()
		}
		s.handlePacket(sess, packet)
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	if packet.MsgID == network.MsgTypeHeartbeat {
		sess.Send(network.MsgTypeHeartbeat, nil)
		return
	}
	if !sess.Allow() {
		s.sendError(sess, fmt.Errorf("%w: too many messages", models.ErrIllegalAction))
		return
	}

	switch packet.MsgID {
	case network.MsgTypeCreateRoom:
		var req network.JoinRequest
		if len(packet.Data) > 0 && !s.decode(sess, packet.Data, &req) {
			return
		}
		s.join(sess, "", req.Name)
	case network.MsgTypeJoinRoom:
		var req network.JoinRequest
		if !s.decode(sess, packet.Data, &req) {
			return
		}
		s.join(sess, req.RoomCode, req.Name)
	case network.MsgTypeLeaveRoom:
		s.dispatch(sess, models.Intent{Kind: models.IntentLeaveRoom})
	case network.MsgTypeIntent:
		var in models.Intent
		if !s.decode(sess, packet.Data, &in) {
			return
		}
		switch in.Kind {
		case models.IntentJoin:
			s.join(sess, in.RoomCode, in.Name)
		default:
			s.dispatch(sess, in)
		}
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

// join 加入或创建房间（code 为空时）。会话的房间码由房间管理器
// 在房间循环内绑定，加入被拒绝时不会收到该房间的广播。
func (s *GameServer) join(sess *session.Session, code, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()
	joined, err := s.roomManager.Join(ctx, code, sess.PlayerID, name)
	if err != nil {
		logger.Log.Debugf("Session %s failed to join room %q: %v", sess.GetID(), code, err)
		if !models.IsRejection(err) {
			s.sendError(sess, err)
		}
		return
	}
	sess.SetRoomCode(joined)
	s.sendJSON(sess, network.MsgTypeJoinRoom, network.JoinRequest{RoomCode: joined, Name: name})
	logger.Log.Infof("Session %s joined room %s", sess.GetID(), joined)
}

// dispatch 发起者和房间总是取自会话，不信任客户端填写的值
func (s *GameServer) dispatch(sess *session.Session, in models.Intent) {
	in.ActorID = sess.PlayerID
	in.RoomCode = sess.RoomCode()
	if in.RoomCode == "" {
		s.sendError(sess, fmt.Errorf("%w: not in a room", models.ErrNotFound))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()
	err := s.roomManager.Dispatch(ctx, in)
	switch {
	case err == nil:
		if in.Kind == models.IntentLeaveRoom {
			sess.SetRoomCode("")
		}
	case models.IsRejection(err):
		// 已经通过 errorMsg 通知了发起者
	default:
		logger.Log.Errorf("Room %s intent %s from %s failed: %v", in.RoomCode, in.Kind, sess.PlayerID, err)
		s.sendError(sess, err)
	}
}

func (s *GameServer) decode(sess *session.Session, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		s.sendError(sess, fmt.Errorf("%w: malformed message: %v", models.ErrIllegalAction, err))
		return false
	}
	return true
}

func (s *GameServer) sendJSON(sess *session.Session, msgID uint16, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Log.Errorf("Failed to encode message %d: %v", msgID, err)
		return
	}
	if err := sess.Send(msgID, data); err != nil {
		logger.Log.Debugf("Send to session %s failed: %v", sess.GetID(), err)
	}
}

func (s *GameServer) sendError(sess *session.Session, err error) {
	s.sendJSON(sess, network.MsgTypePlayerEvent, models.Event{
		Type:    models.EventError,
		Room:    sess.RoomCode(),
		Payload: models.ErrorMsg{Kind: models.ErrorKind(err), Reason: err.Error()},
	})
}

// HTTP 接口

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Debugf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch models.ErrorKind(err) {
	case "notFound":
		status = http.StatusNotFound
	case "illegalAction", "invalidConfiguration":
		status = http.StatusBadRequest
	}
	writeJSON(w, status, models.ErrorMsg{Kind: models.ErrorKind(err), Reason: err.Error()})
}

// handleCreateRoomHTTP 预留一个房间码，由客户端随后通过 websocket 加入
func (s *GameServer) handleCreateRoomHTTP(w http.ResponseWriter, r *http.Request) {
	created, err := s.roomManager.CreateRoom()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"room": created.Code})
}

func (s *GameServer) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	snap, err := s.roomManager.Snapshot(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *GameServer) handleRecords(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	code := room.NormalizeCode(r.URL.Query().Get("room"))
	records, err := s.records.Recent(r.Context(), code, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []models.GameRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *GameServer) handleRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *GameServer) handleStats(w http.ResponseWriter, r *http.Request) {
	teams, err := s.records.TeamStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Rooms room.Stats         `json:"rooms"`
		Games services.TeamStats `json:"games"`
	}{
		Rooms: s.roomManager.Stats(),
		Games: teams,
	})
}
