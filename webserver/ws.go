package webserver

import (
	"context"
	"encoding/json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lefinal/masc-devices/devicelist"
	"github.com/lefinal/masc-devices/errors"
	"go.uber.org/zap"
	"net/http"
	"time"
)

const (
	// writeTimeout is the timeout for writing a message to the peer.
	writeTimeout = 10 * time.Second
	// pingInterval is the interval in which pings are sent to the peer. Must be
	// less than pongTimeout.
	pingInterval = (pongTimeout * 9) / 10
	// pongTimeout is the timeout for waiting for the next pong message from the
	// peer. Must be greater than pingInterval.
	pongTimeout = 60 * time.Second
	// maxMessageSize is the maximum message size allowed from peer.
	maxMessageSize = 512
)

// wsClient streams device list views to a websocket connection.
type wsClient struct {
	id         uuid.UUID
	logger     *zap.Logger
	connection *websocket.Conn
}

// handleDevicesWS upgrades to a websocket connection and streams each
// devicelist.View. The passed context.Context is used in order to stop all
// connections.
func (server *WebServer) handleDevicesWS(ctx context.Context, views ViewSource) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errors.Log(server.logger, errors.Error{
				Code:    errors.ErrBadRequest,
				Err:     err,
				Message: "upgrade websocket connection",
			})
			return
		}
		clientID := uuid.New()
		client := &wsClient{
			id:         clientID,
			logger:     server.logger.Named("ws").With(zap.String("client_id", clientID.String())),
			connection: conn,
		}
		client.logger.Debug("client connected")
		lifetime, cancel := context.WithCancel(ctx)
		go func() {
			defer cancel()
			client.readPump()
		}()
		go func() {
			client.writePump(views.Watch(lifetime))
			client.logger.Debug("client disconnected")
		}()
	}
}

// readPump reads from the connection until it fails. Incoming messages are
// discarded as the stream is read-only. Reading is needed for handling pongs
// and close messages.
func (c *wsClient) readPump() {
	defer func() {
		_ = c.connection.Close()
	}()
	c.connection.SetReadLimit(maxMessageSize)
	_ = c.connection.SetReadDeadline(time.Now().Add(pongTimeout))
	c.connection.SetPongHandler(func(string) error {
		_ = c.connection.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	for {
		_, _, err := c.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("unexpected close", zap.Error(err))
			}
			return
		}
	}
}

// writePump writes each devicelist.View from the given channel to the
// connection and sends pings. It returns when the channel is closed or writing
// fails.
func (c *wsClient) writePump(views <-chan devicelist.View) {
	pingTicker := time.NewTicker(pingInterval)
	defer func() {
		pingTicker.Stop()
		_ = c.connection.Close()
	}()
	for {
		select {
		case view, ok := <-views:
			_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.connection.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			raw, err := json.Marshal(view)
			if err != nil {
				errors.Log(c.logger, errors.Error{
					Code:    errors.ErrInternal,
					Kind:    errors.KindEncodeJSON,
					Err:     err,
					Message: "marshal device list",
				})
				continue
			}
			err = c.connection.WriteMessage(websocket.TextMessage, raw)
			if err != nil {
				// We expect the read pump to fail as well.
				c.logger.Debug("write device list", zap.Error(err))
				return
			}
		case <-pingTicker.C:
			_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("write ping", zap.Error(err))
				return
			}
		}
	}
}
