package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/wfunc/mafia/logger"
	"github.com/wfunc/mafia/models"
	"github.com/wfunc/mafia/network"
)

const usage = `commands:
  create NAME | join CODE NAME | leave
  ready | unready | config MAFIA DETECTIVE DOCTOR | start | ack
  act PLAYER_ID | vote PLAYER_ID
  advance | night | voting | tally | lobby`

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	packet, err := network.Encode(msgID, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

// parse 把一行命令转换为要发送的消息
func parse(line string) (uint16, any, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, nil, fmt.Errorf("empty command")
	}
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	intent := func(kind models.IntentKind) (uint16, any, error) {
		return network.MsgTypeIntent, models.Intent{Kind: kind}, nil
	}

	switch fields[0] {
	case "create":
		return network.MsgTypeCreateRoom, network.JoinRequest{Name: arg(1)}, nil
	case "join":
		return network.MsgTypeJoinRoom, network.JoinRequest{RoomCode: arg(1), Name: arg(2)}, nil
	case "leave":
		return network.MsgTypeLeaveRoom, struct{}{}, nil
	case "ready", "unready":
		return network.MsgTypeIntent, models.Intent{Kind: models.IntentSetReady, Ready: fields[0] == "ready"}, nil
	case "config":
		var counts [3]int
		for i := range counts {
			n, err := strconv.Atoi(arg(i + 1))
			if err != nil {
				return 0, nil, fmt.Errorf("config needs three numbers")
			}
			counts[i] = n
		}
		cfg := &models.RoleConfig{Mafia: counts[0], Detective: counts[1], Doctor: counts[2]}
		return network.MsgTypeIntent, models.Intent{Kind: models.IntentUpdateRoleConfig, Config: cfg}, nil
	case "start":
		return intent(models.IntentStartGame)
	case "ack":
		return intent(models.IntentAcknowledgeRole)
	case "act":
		return network.MsgTypeIntent, models.Intent{Kind: models.IntentSubmitNightAction, TargetID: arg(1)}, nil
	case "vote":
		return network.MsgTypeIntent, models.Intent{Kind: models.IntentCastVote, TargetID: arg(1)}, nil
	case "advance":
		return intent(models.IntentAdvancePhase)
	case "night":
		return intent(models.IntentProcessNight)
	case "voting":
		return intent(models.IntentStartVoting)
	case "tally":
		return intent(models.IntentProcessVotes)
	case "lobby":
		return intent(models.IntentReturnToLobby)
	}
	return 0, nil, fmt.Errorf("unknown command %q", fields[0])
}

func run(addr, playerID string) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	if playerID != "" {
		u.RawQuery = url.Values{"player_id": {playerID}}.Encode()
	}
	logger.Log.Infof("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				logger.Log.Infof("Read error: %v", err)
				return
			}
			packet, err := network.Decode(message)
			if err != nil {
				logger.Log.Warnf("Received invalid packet: %v", err)
				continue
			}
			if packet.MsgID == network.MsgTypeHeartbeat {
				continue
			}
			fmt.Printf("<- RECV (ID: %d): %s\n", packet.MsgID, packet.Data)
		}
	}()

	// 保持心跳
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := send(c, network.MsgTypeHeartbeat, struct{}{}); err != nil {
					return
				}
			}
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	fmt.Println(usage)

	for {
		select {
		case <-done:
			return nil
		case <-interrupt:
			logger.Log.Info("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				logger.Log.Infof("Write close error: %v", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			msgID, payload, err := parse(line)
			if err != nil {
				fmt.Println(err)
				fmt.Println(usage)
				continue
			}
			if err := send(c, msgID, payload); err != nil {
				return fmt.Errorf("write error: %w", err)
			}
		}
	}
}

func main() {
	var addr, playerID string
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Interactive websocket client for the mafia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(addr, playerID)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "server address")
	cmd.Flags().StringVar(&playerID, "player", "", "player id to reconnect with")

	if err := logger.Init("info", true); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
