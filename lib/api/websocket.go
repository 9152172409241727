package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fosdem/volstream/lib/session"
	"github.com/fosdem/volstream/lib/stream"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(req *http.Request) bool {
		return true
	},
}

// NodeUpdate is pushed to websocket clients whenever a node changes.
type NodeUpdate struct {
	Event string            `json:"event"`
	Kind  string            `json:"kind"`
	Node  stream.NodeStatus `json:"node"`
}

type StatsUpdate struct {
	Event string `json:"event"`
	Stats any    `json:"stats"`
}

// wsClient serialises writes, gorilla connections allow only one writer.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) write(packet []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, packet)
}

// @Summary	Open websocket for realtime node and stats updates
// @Router		/api/ws [get]
// @Param		Upgrade	header	string	true	"websocket"
// @Tags		base
// @Success	101
func (a *Api) handleWebsocket(w http.ResponseWriter, req *http.Request) {
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		a.log.Warn("couldn't make websocket", "err", err)
		return
	}
	client := &wsClient{conn: ws}
	defer func() {
		a.wsMu.Lock()
		delete(a.wsClients, client)
		a.wsMu.Unlock()
		err := ws.Close()
		if err != nil {
			a.log.Debug("could not close websocket", "err", err)
		}
	}()

	// the initial state goes out before the client can receive broadcasts
	for _, n := range a.session.NodeList {
		packet, err := json.Marshal(NodeUpdate{Event: session.EventNodeUpdated, Kind: "initial", Node: n.Status()})
		if err != nil {
			return
		}
		if err := client.write(packet); err != nil {
			return
		}
	}

	a.wsMu.Lock()
	a.wsClients[client] = struct{}{}
	a.wsMu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go a.websocketWriter(client, done)

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			break
		}
		a.log.Debug("websocket message ignored", "msg", fmt.Sprintf("%q", msg))
	}
}

// websocketWriter pushes the stats every two seconds until done is closed.
func (a *Api) websocketWriter(client *wsClient, done <-chan struct{}) {
	pingTicker := time.NewTicker(2 * time.Second)
	defer pingTicker.Stop()
	for {
		select {
		case <-done:
			return
		case <-pingTicker.C:
		}
		packet, err := json.Marshal(StatsUpdate{Event: "stats", Stats: a.updateStats()})
		if err != nil {
			return
		}
		if err := client.write(packet); err != nil {
			return
		}
	}
}

func (a *Api) broadcast(v any) {
	packet, err := json.Marshal(v)
	if err != nil {
		a.log.Error("could not marshal websocket packet", "err", err)
		return
	}

	a.wsMu.Lock()
	clients := make([]*wsClient, 0, len(a.wsClients))
	for c := range a.wsClients {
		clients = append(clients, c)
	}
	a.wsMu.Unlock()

	for _, c := range clients {
		if err := c.write(packet); err != nil {
			a.log.Debug("could not write to websocket", "err", err)
		}
	}
}
