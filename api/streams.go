package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"schedule-board/broadcast"
	"schedule-board/domain"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxReadBytes = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// events serves the bidirectional event channel. The client only ever
// receives frames; anything it sends is read and discarded so that close
// frames and dead peers are noticed.
func events(hub *broadcast.Hub, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			logger.Warnf("websocket upgrade: %v", err)
			return nil
		}
		defer conn.Close()

		session, err := hub.Join(c.Request().Context())
		if err != nil {
			logger.Errorf("join session: %v", err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "unavailable"),
				time.Now().Add(writeWait))
			return nil
		}
		defer hub.Leave(session)

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			conn.SetReadLimit(maxReadBytes)
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(pongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case ev := <-session.Events():
				frame, err := domain.EncodeFrame(ev)
				if err != nil {
					logger.Errorf("encode frame: %v", err)
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					logger.WithField("session", session.ID).Debugf("websocket write: %v", err)
					return nil
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return nil
				}
			case <-session.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "resync"),
					time.Now().Add(writeWait))
				return nil
			case <-readDone:
				return nil
			}
		}
	}
}

// stream serves the same frames as Server-Sent Events for clients that cannot
// open a websocket.
func stream(hub *broadcast.Hub, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		session, err := hub.Join(ctx)
		if err != nil {
			logger.Errorf("join session: %v", err)
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
		defer hub.Leave(session)

		c.Response().WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		w := c.Response()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-session.Done():
				return nil
			case <-ticker.C:
				if _, err := w.Write([]byte(": ping\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			case ev := <-session.Events():
				frame, err := domain.EncodeFrame(ev)
				if err != nil {
					logger.Errorf("encode frame: %v", err)
					continue
				}
				if _, err := w.Write([]byte("event: " + string(ev.Type) + "\ndata: ")); err != nil {
					return nil
				}
				if _, err := w.Write(frame); err != nil {
					return nil
				}
				if _, err := w.Write([]byte("\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}
