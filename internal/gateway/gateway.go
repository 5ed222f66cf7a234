package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rdvm/jukebox/internal/auth"
	"github.com/rdvm/jukebox/internal/engine"
	"github.com/rdvm/jukebox/internal/hub"
	"github.com/rdvm/jukebox/internal/repository"
	"github.com/rdvm/jukebox/internal/resolver"
	"github.com/rdvm/jukebox/internal/sequencer"
)

const historyLimit = 50

// Player is the transport-control surface exposed to observers.
type Player interface {
	Send(tokens ...any)
	Snapshot() engine.State
}

type Searcher interface {
	Search(ctx context.Context, query string) []resolver.SearchResult
}

type Store interface {
	ListHistory(ctx context.Context, limit int) ([]repository.HistoryEntry, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Gateway authenticates observer connections and routes their actions onto
// the sequencer and the engine link.
type Gateway struct {
	auth     *auth.Service
	hub      *hub.Hub
	seq      *sequencer.Sequencer
	player   Player
	searcher Searcher
	store    Store

	upgrader websocket.Upgrader
}

func NewGateway(a *auth.Service, h *hub.Hub, seq *sequencer.Sequencer, player Player, searcher Searcher, store Store) *Gateway {
	return &Gateway{
		auth:     a,
		hub:      h,
		seq:      seq,
		player:   player,
		searcher: searcher,
		store:    store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type actionMsg struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type controlMsg struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

type userInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// ServeWS authenticates and upgrades an observer connection. Missing or
// invalid credentials reject the request before the upgrade.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	claims, err := g.auth.Verify(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade", "err", err)
		return
	}

	client := g.hub.Register(conn)
	defer g.hub.Unregister(client)

	slog.Info("observer connected", "user", claims.Name)

	// Late-join consistency: a fresh observer gets the full picture up front.
	client.Send("user_info", userInfo{ID: claims.UserID, Name: claims.Name, Role: claims.Role})
	client.Send("playerState", g.player.Snapshot())
	if st, err := g.seq.CurrentStatus(r.Context()); err == nil {
		client.Send("status", st)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			slog.Info("observer disconnected", "user", claims.Name)
			return
		}
		var msg actionMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		g.dispatch(r.Context(), client, claims, msg)
	}
}

// dispatch handles one observer action. Actions from a single connection are
// processed in order; failures are logged, never sent back as protocol errors.
func (g *Gateway) dispatch(ctx context.Context, client *hub.Client, claims *auth.Claims, msg actionMsg) {
	req := sequencer.Requester{Name: claims.Name, ID: claims.UserID}

	switch msg.Action {
	case "add":
		var url string
		if json.Unmarshal(msg.Data, &url) != nil || url == "" {
			return
		}
		if err := g.seq.Enqueue(ctx, url, req); err != nil {
			slog.Error("enqueue", "url", url, "err", err)
		}

	case "search":
		var query string
		if json.Unmarshal(msg.Data, &query) != nil || query == "" {
			return
		}
		results := g.searcher.Search(ctx, query)
		if results == nil {
			results = []resolver.SearchResult{}
		}
		client.Send("search_results", results)

	case "jump_to":
		var id int64
		if json.Unmarshal(msg.Data, &id) != nil {
			return
		}
		if err := g.seq.JumpTo(ctx, id); err != nil {
			slog.Error("jump_to", "id", id, "err", err)
		}

	case "replay_history":
		var id int64
		if json.Unmarshal(msg.Data, &id) != nil {
			return
		}
		if err := g.seq.Replay(ctx, id, req); err != nil {
			slog.Error("replay_history", "id", id, "err", err)
		}

	case "get_history":
		entries, err := g.store.ListHistory(ctx, historyLimit)
		if err != nil {
			slog.Error("history read", "err", err)
			return
		}
		if entries == nil {
			entries = []repository.HistoryEntry{}
		}
		client.Send("history_data", entries)

	case "control":
		var c controlMsg
		if json.Unmarshal(msg.Data, &c) != nil {
			return
		}
		g.control(ctx, c)
	}
}

func (g *Gateway) control(ctx context.Context, c controlMsg) {
	switch c.Type {
	case "pause":
		g.player.Send("cycle", "pause")
	case "next":
		if err := g.seq.Skip(ctx); err != nil {
			slog.Error("skip", "err", err)
		}
	case "prev":
		// Restart the current track; there is no previous-track history walk.
		g.player.Send("seek", 0, "absolute")
	case "seek":
		g.player.Send("seek", c.Value, "absolute")
	case "set_volume":
		g.player.Send("set_property", "volume", c.Value)
		vol := strconv.FormatFloat(c.Value, 'f', -1, 64)
		if err := g.store.SetSetting(ctx, engine.SettingKeyVolume, vol); err != nil {
			slog.Error("persist volume", "err", err)
		}
	}
}
