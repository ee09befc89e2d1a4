package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subset of a websocket connection a View drives.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens the channel of one concert.
type Dialer interface {
	Dial(ctx context.Context, concertID string) (Conn, error)
}

// WSDialer dials concert channels over websocket at the addresses the
// APIClient derives.
type WSDialer struct {
	API    *APIClient
	Dialer *websocket.Dialer // nil uses a dialer with a 10s handshake timeout
}

func (d *WSDialer) Dial(ctx context.Context, concertID string) (Conn, error) {
	addr, err := d.API.ChannelURL(concertID)
	if err != nil {
		return nil, err
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}

	conn, resp, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusNotFound:
				return nil, ErrConcertNotFound
			case http.StatusUnauthorized:
				return nil, &APIError{StatusCode: resp.StatusCode, Message: "invalid session token"}
			}
		}
		return nil, fmt.Errorf("dialing concert channel: %w", err)
	}
	return conn, nil
}
