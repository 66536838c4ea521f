package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"

	channerics "github.com/niceyeti/channerics/channels"
	"github.com/gorilla/mux"
)

const indexTemplate = `
<!DOCTYPE html>
<html>
<head>
	<title>agentsim dashboard</title>
	<link rel="icon" href="data:,">
</head>
<body>
	<h1>agentsim</h1>
	<pre id="status">{{ .Initial }}</pre>
	<script>
		const ws = new WebSocket("ws://" + window.location.host + "/ws");
		ws.onmessage = function (event) {
			document.getElementById("status").textContent = event.data;
		};
		ws.onerror = function (event) {
			console.log("dashboard socket error", event);
		};
	</script>
</body>
</html>
`

// Server serves a single status page, a websocket feed of StatusUpdate
// values to it, and a liveness route: one page, one websocket route, one
// upgrader, one healthz, routed through gorilla/mux. It supports exactly one
// connected client at a time rather than solving multi-client fan-out.
type Server struct {
	addr    string
	source  <-chan StatusUpdate
	log     *slog.Logger
	template *template.Template

	mu   sync.Mutex
	last StatusUpdate
}

// NewServer builds a dashboard bound to addr, forwarding whatever is sent on
// updates to the websocket route. All websocket clients read from one shared
// feed, so each update reaches only one of them. A client's session ends when
// the peer disconnects, its request context is cancelled, or a socket error
// occurs; closing updates only stops further pushes.
func NewServer(addr string, updates <-chan StatusUpdate, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	tmpl := template.Must(template.New("index").Parse(indexTemplate))
	return &Server{addr: addr, source: updates, log: logger, template: tmpl}
}

// Serve blocks, serving the dashboard's HTTP and websocket routes until ctx
// is cancelled or http.ListenAndServe returns a fatal error. Per
// channerics.Broadcast's contract, the single update source is split into
// one branch that tracks the latest snapshot for freshly loaded pages and
// one branch forwarded to the websocket route.
func (s *Server) Serve(ctx context.Context) error {
	branches := channerics.Broadcast(ctx.Done(), s.source, 2)
	trackerFeed, clientFeed := branches[0], branches[1]
	go s.trackLast(ctx, trackerFeed)

	router := mux.NewRouter()
	router.HandleFunc("/", s.serveIndex).Methods(http.MethodGet)
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.serveWebsocket(w, r, clientFeed)
	})
	router.HandleFunc("/healthz", s.serveHealthz).Methods(http.MethodGet)

	httpServer := &http.Server{Addr: s.addr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("dashboard: serve: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return httpServer.Close()
	case err := <-errCh:
		return err
	}
}

// trackLast keeps the most recent StatusUpdate around so a freshly loaded
// page has something to render before its first websocket push arrives.
func (s *Server) trackLast(ctx context.Context, feed <-chan StatusUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-feed:
			if !ok {
				return
			}
			s.mu.Lock()
			s.last = update
			s.mu.Unlock()
		}
	}
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	initial, _ := json.Marshal(last)
	_ = s.template.Execute(w, struct{ Initial string }{Initial: string(initial)})
}

// serveHealthz reports liveness unconditionally: the dashboard has nothing
// of its own to be unhealthy about once it's accepting connections, so this
// is a plain readiness probe for whatever orchestrates the binary.
func (s *Server) serveHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request, feed <-chan StatusUpdate) {
	c, err := newClient(feed, w, r)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer c.ws.close()

	if err := c.sync(); err != nil {
		s.log.Warn("dashboard client disconnected", "error", err)
	}
}
