package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn 基于 gorilla/websocket 的 SessionTransport
//
// 所有数据帧经 send 队列由唯一的 writePump 写出，保证单个接收者的 FIFO。
// readPump 一次只交付一帧，Receive 取走后才继续读取。
type wsConn struct {
	conn    *websocket.Conn
	send    chan []byte
	inbound chan []byte
	done    chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool

	writeWait    time.Duration
	pingInterval time.Duration
	pongWait     time.Duration
	metrics      Metrics
}

func newWSConn(conn *websocket.Conn, cfg *Config, metrics Metrics) *wsConn {
	c := &wsConn{
		conn:         conn,
		send:         make(chan []byte, cfg.SendQueueSize),
		inbound:      make(chan []byte),
		done:         make(chan struct{}),
		writeWait:    cfg.WriteWait,
		pingInterval: cfg.HeartbeatInterval,
		pongWait:     cfg.HeartbeatTimeout,
		metrics:      metrics,
	}
	conn.SetReadLimit(cfg.MaxMessageSize)

	go c.readPump()
	go c.writePump()
	return c
}

// readPump 读取消息
func (c *wsConn) readPump() {
	defer c.terminate()

	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		c.metrics.IncrementReadErrors()
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.metrics.IncrementReadErrors()
			}
			return
		}
		select {
		case c.inbound <- data:
		case <-c.done:
			return
		}
	}
}

// writePump 写入消息
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.terminate()
	}()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.metrics.IncrementWriteErrors()
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send 发送消息，队列满时等待直到 ctx 到期
func (c *wsConn) Send(ctx context.Context, payload []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return errors.Join(ErrSendTimeout, ctx.Err())
	}
}

// Receive 读取下一帧
func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.done:
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close 发送关闭帧并断开
func (c *wsConn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		err = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
		if cerr := c.conn.Close(); err == nil {
			err = cerr
		}
	})
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

// terminate 不发送关闭帧直接断开，读写协程退出时调用
func (c *wsConn) terminate() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.conn.Close()
	})
}

// Closed 连接是否已关闭
func (c *wsConn) Closed() bool {
	return c.closed.Load()
}
