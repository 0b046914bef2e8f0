package control

import (
	"bufio"
	"net"

	"github.com/gorilla/websocket"
)

// Transport is one framed bidirectional control connection. ReadFrame
// and WriteFrame carry raw frame text; framing (line vs. message) is the
// transport's concern.
type Transport interface {
	ReadFrame() (string, error)
	WriteFrame(frame string) error
	Close() error
	RemoteAddr() string
}

// connTransport frames over a stream connection, one frame per line
type connTransport struct {
	conn   net.Conn
	reader *bufio.Reader
}

// NewConnTransport wraps a TCP (or any stream) connection
func NewConnTransport(conn net.Conn) Transport {
	return &connTransport{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

func (t *connTransport) ReadFrame() (string, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return line, nil
}

func (t *connTransport) WriteFrame(frame string) error {
	_, err := t.conn.Write([]byte(frame + "\r\n"))
	return err
}

func (t *connTransport) Close() error {
	return t.conn.Close()
}

func (t *connTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// wsTransport frames over a WebSocket, one frame per text message
type wsTransport struct {
	conn *websocket.Conn
}

// NewWebsocketTransport wraps an upgraded WebSocket connection
func NewWebsocketTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadFrame() (string, error) {
	_, msg, err := t.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(msg), nil
}

func (t *wsTransport) WriteFrame(frame string) error {
	return t.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
