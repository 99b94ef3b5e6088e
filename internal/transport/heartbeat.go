package transport

import (
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aidevmon/mcp-transport/internal/observe"
)

// pingWriteWait bounds the control-frame write itself, not the liveness
// window.
const pingWriteWait = 5 * time.Second

// installLiveness arms the read deadline and the pong handler for one
// connection. The ping payload is the send timestamp in nanoseconds; the
// peer echoes it back in the pong, so latency needs no bookkeeping map.
func (c *Client) installLiveness(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatTimeout))
	conn.SetPongHandler(func(payload string) error {
		if ns, err := strconv.ParseInt(payload, 10, 64); err == nil {
			if latency := time.Since(time.Unix(0, ns)); latency >= 0 {
				c.stats.recordLatency(latency)
				observe.ObserveLatency(latency)
			}
		}
		c.mu.Lock()
		c.lastHeartbeat = time.Now()
		c.mu.Unlock()
		return conn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatTimeout))
	})
}

// heartbeatLoop probes the connection while it is up. It stops when the
// connection's done channel closes, so it never runs concurrently with
// itself for the same connection instance. A dead socket is detected by
// the read deadline, not here: a failed ping write only gets logged.
func (c *Client) heartbeatLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			payload := strconv.AppendInt(nil, time.Now().UnixNano(), 10)
			if err := conn.WriteControl(websocket.PingMessage, payload, time.Now().Add(pingWriteWait)); err != nil {
				c.log.Debugw("ping_write_failed", "err", err)
			}
		case <-done:
			return
		}
	}
}
