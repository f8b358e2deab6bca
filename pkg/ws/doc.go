// Package ws implements the realtime chat delivery core: a connection registry,
// a bidirectional room membership index, presence and typing state, bounded
// fan-out, and the per-connection session lifecycle.
//
// # Basic Usage
//
//	m, err := ws.NewManager(ws.Dependencies{
//	    Auth:     authenticator,
//	    Chats:    chatDirectory,
//	    Messages: messageStore,
//	    Users:    userDirectory,
//	},
//	    ws.WithTypingTTL(10*time.Second),
//	    ws.WithCheckOriginWhitelist([]string{"https://example.com"}),
//	    ws.WithLogger(log),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	go m.Run(ctx)
//
//	r.GET("/ws", func(c *gin.Context) {
//	    _ = m.HandleUpgrade(c.Writer, c.Request)
//	})
//
//	// Graceful shutdown
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//	m.Shutdown(ctx)
//
// # Wire Protocol
//
// Every frame is a JSON object {"type": "...", "data": {...}}. The literal text
// frame "ping" is answered with the literal "pong" without decoding. Inbound
// frames are decoded once by DecodeEvent into one of the Event structs and
// dispatched through the Router; failures come back as an "error" event
// carrying {code, message}.
//
// # Close Codes
//
//	1000  normal teardown
//	1001  server shutdown
//	1008  authentication failed
//	1011  server error or failed delivery
//	4000  replaced by a newer session of the same user
//
// # Concurrency
//
// Registry, Membership and TypingState each guard their own state with a
// single mutex that is never held while sending. Each connection has one
// receive loop and one write pump; events from one connection are handled
// strictly in order.
package ws
