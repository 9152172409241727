// Package api serves the HTTP control and inspection interface of a running
// session.
//
//	@title			volstream API
//	@description	Inspect and drive streaming volume nodes.
//	@BasePath		/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/pprof"
	"sync"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/fosdem/volstream/lib/api/docs"
	"github.com/fosdem/volstream/lib/config"
	"github.com/fosdem/volstream/lib/log"
	"github.com/fosdem/volstream/lib/metrics"
	"github.com/fosdem/volstream/lib/session"
	"github.com/fosdem/volstream/lib/stats"
)

type Api struct {
	srv     http.Server
	mux     *http.ServeMux
	cfg     *config.ApiCfg
	session *session.Session

	statsMu sync.Mutex
	Stats   *stats.Stats

	wsMu      sync.Mutex
	wsClients map[*wsClient]struct{}

	log *slog.Logger
}

func New(cfg *config.ApiCfg, s *session.Session) *Api {
	a := &Api{}
	a.cfg = cfg
	a.mux = http.NewServeMux()
	a.session = s
	a.srv.Addr = cfg.Bind
	a.srv.Handler = a.mux
	a.wsClients = make(map[*wsClient]struct{})
	a.log = log.Module("api")
	a.Stats = stats.New()

	s.AddEventListener(session.EventNodeUpdated, func(s *session.Session, data interface{}) {
		event := data.(session.EventNodeData)
		n, ok := s.Node(event.Node)
		if !ok {
			return
		}
		a.broadcast(NodeUpdate{
			Event: session.EventNodeUpdated,
			Kind:  event.Kind,
			Node:  n.Status(),
		})
	})

	a.routes()
	return a
}

func (a *Api) routes() {
	if a.cfg.EnableProfiler {
		a.mux.HandleFunc("/prof", a.profileCPU)
	}
	a.mux.HandleFunc("/api/kill", a.suicide)
	a.mux.HandleFunc("/api/stats", a.getStats)
	a.mux.HandleFunc("/api/codecs", a.handleCodecs)
	a.mux.HandleFunc("/api/nodes", a.handleNodes)
	a.mux.HandleFunc("/api/node/{node}", a.handleNode)
	a.mux.HandleFunc("/api/node/{node}/keyframe", a.handleKeyFrame)
	a.mux.HandleFunc("/api/node/{node}/codec_type/{type}", a.handleCodecType)
	a.mux.HandleFunc("/api/node/{node}/image", a.handleNodeImage)
	a.mux.HandleFunc("/api/node/{node}/image/{format}", a.handleNodeImage)
	a.mux.HandleFunc("/api/ws", a.handleWebsocket)
	a.mux.Handle("/metrics", metrics.Handler())
	a.mux.Handle("/swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

func (a *Api) Handler() http.Handler {
	return a.mux
}

func (a *Api) Serve() error {
	err := a.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (a *Api) Shutdown(ctx context.Context) error {
	a.wsMu.Lock()
	for c := range a.wsClients {
		c.conn.Close()
	}
	a.wsMu.Unlock()
	return a.srv.Shutdown(ctx)
}

func (a *Api) profileCPU(w http.ResponseWriter, _ *http.Request) {
	err := pprof.StartCPUProfile(w)
	if err != nil {
		http.Error(w, fmt.Sprintf("Could not start CPU profile: %s", err), http.StatusInternalServerError)
		return
	}
	time.Sleep(10 * time.Second)
	pprof.StopCPUProfile()
}

// @Summary	Stop the server
// @Router		/api/kill [post]
// @Tags		base
// @Success	200
func (a *Api) suicide(w http.ResponseWriter, _ *http.Request) {
	a.log.Info("shutting down as per api request")
	a.session.RequestShutdown()
	a.writeJSON(w, "ok")
}

// @Summary	Aggregated frame counters and rates
// @Router		/api/stats [get]
// @Tags		base
// @Produce	json
// @Success	200	{object}	stats.Stats
func (a *Api) getStats(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, a.updateStats())
}

// updateStats refreshes the totals and returns a copy of them.
func (a *Api) updateStats() stats.Stats {
	a.wsMu.Lock()
	clients := len(a.wsClients)
	a.wsMu.Unlock()

	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	a.Stats.Update(a.session.Stats())
	a.Stats.WsClients = clients
	return *a.Stats
}

func (a *Api) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		a.log.Warn("could not write response", "err", err)
	}
}

// ServeInBackground starts the server when cfg is set. A server that fails
// to start requests a shutdown of the session.
func ServeInBackground(s *session.Session, cfg *config.ApiCfg) *Api {
	if cfg == nil {
		return nil
	}
	theApi := New(cfg, s)
	theApi.log.Info("starting web server", "bind", cfg.Bind)
	go func() {
		err := theApi.Serve()
		if err != nil {
			theApi.log.Error("could not start web server", "err", err)
			s.RequestShutdown()
		}
	}()
	return theApi
}
