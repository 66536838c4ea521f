package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait      = 1 * time.Second
	pubResolution  = time.Millisecond * 250
	pingResolution = time.Millisecond * 500
	pongWait       = pingResolution * 4
	readDeadline   = time.Second
	writeDeadline  = time.Second
	closeGracePeriod = 2 * time.Second
)

var upgrader = websocket.Upgrader{}

// ErrPongDeadlineExceeded is returned by a client's ping-pong loop when the
// peer stops responding to pings.
var ErrPongDeadlineExceeded = errors.New("dashboard: client disconnect, pong deadline exceeded")

// ErrSockCongestion indicates too many waiters queued on the socket for a
// given read or write.
var ErrSockCongestion = errors.New("dashboard: socket operation congested")

// client publishes a stream of StatusUpdate values to one connected
// websocket peer, unidirectionally. Updates received faster than
// pubResolution are coalesced by simply dropping the intermediate ones,
// since each StatusUpdate is a complete, idempotent snapshot.
type client struct {
	updates <-chan StatusUpdate
	ws      *websock
	rootCtx context.Context
}

// newClient upgrades the request to a websocket and returns a publisher
// bound to it.
func newClient(updates <-chan StatusUpdate, w http.ResponseWriter, r *http.Request) (*client, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, err
	}
	return &client{
		updates: updates,
		ws:      newWebsock(ws),
		rootCtx: r.Context(),
	}, nil
}

// sync runs the publish, ping-pong, and read-pump loops until the peer
// disconnects, the context is cancelled, or an unexpected error occurs.
func (c *client) sync() error {
	group, ctx := errgroup.WithContext(c.rootCtx)
	group.Go(func() error { return c.readMessages(ctx) })
	group.Go(func() error { return c.pingPong(ctx) })
	group.Go(func() error { return c.publish(ctx) })
	return group.Wait()
}

func (c *client) pingPong(ctx context.Context) error {
	pong := make(chan struct{})
	defer close(pong)
	c.ws.conn().SetPongHandler(func(string) error {
		pong <- struct{}{}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := c.ping(ctx); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (c *client) ping(ctx context.Context) error {
	return c.ws.write(ctx, func(ws *websocket.Conn) error {
		if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil && isUnexpected(err) {
			return fmt.Errorf("dashboard: ping failed: %w", err)
		}
		return nil
	})
}

// readMessages drives the websocket's internal ping/pong control-frame
// handling; this connection never expects application messages from the
// client.
func (c *client) readMessages(ctx context.Context) error {
	for {
		err := c.ws.read(ctx, func(ws *websocket.Conn) error {
			_, _, readErr := ws.ReadMessage()
			return readErr
		})
		if err != nil {
			return err
		}
	}
}

func (c *client) publish(ctx context.Context) error {
	lastSync := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-c.updates:
			if !ok {
				return nil
			}
			if time.Since(lastSync) < pubResolution {
				continue
			}
			lastSync = time.Now()
			err := c.ws.write(ctx, func(ws *websocket.Conn) error {
				if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
					return fmt.Errorf("dashboard: set write deadline: %w", err)
				}
				if err := ws.WriteJSON(update); err != nil && isUnexpected(err) {
					return fmt.Errorf("dashboard: publish failed: %w", err)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
	}
}

func isUnexpected(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

// websock serializes concurrent reads and writes against a single
// websocket connection, which gorilla/websocket requires callers to do
// themselves.
type websock struct {
	readSem  chan struct{}
	writeSem chan struct{}
	ws       *websocket.Conn
}

func newWebsock(ws *websocket.Conn) *websock {
	return &websock{
		readSem:  make(chan struct{}, 1),
		writeSem: make(chan struct{}, 1),
		ws:       ws,
	}
}

func (s *websock) conn() *websocket.Conn { return s.ws }

func (s *websock) close() {
	s.readSem <- struct{}{}
	s.writeSem <- struct{}{}
	_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	time.Sleep(closeGracePeriod)
	_ = s.ws.Close()
}

func (s *websock) read(ctx context.Context, fn func(*websocket.Conn) error) error {
	select {
	case <-ctx.Done():
		return nil
	case s.readSem <- struct{}{}:
		defer func() { <-s.readSem }()
		return fn(s.ws)
	case <-time.After(readDeadline):
		return ErrSockCongestion
	}
}

func (s *websock) write(ctx context.Context, fn func(*websocket.Conn) error) error {
	select {
	case <-ctx.Done():
		return nil
	case s.writeSem <- struct{}{}:
		defer func() { <-s.writeSem }()
		return fn(s.ws)
	case <-time.After(writeDeadline):
		return ErrSockCongestion
	}
}
