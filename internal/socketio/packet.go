package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Engine.IO packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioNoop    = '6'
)

// Socket.IO packet types, carried inside an Engine.IO message.
const (
	sioConnect    = '0'
	sioDisconnect = '1'
	sioEvent      = '2'
	sioAck        = '3'
	sioError      = '4'
)

var (
	// ErrServerClosed is returned when the server closes the session.
	ErrServerClosed = errors.New("socket.io: session closed by server")
	// ErrMalformed is returned for packets that cannot be decoded.
	ErrMalformed = errors.New("socket.io: malformed packet")
)

// openPacket is the Engine.IO handshake payload.
type openPacket struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
}

func (o openPacket) interval() time.Duration { return time.Duration(o.PingInterval) * time.Millisecond }
func (o openPacket) timeout() time.Duration  { return time.Duration(o.PingTimeout) * time.Millisecond }

func parseOpen(msg string) (openPacket, error) {
	if len(msg) == 0 || msg[0] != eioOpen {
		return openPacket{}, fmt.Errorf("%w: expected open packet, got %q", ErrMalformed, clip(msg))
	}
	var o openPacket
	if err := json.Unmarshal([]byte(msg[1:]), &o); err != nil {
		return openPacket{}, fmt.Errorf("%w: open payload: %v", ErrMalformed, err)
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25000
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 20000
	}
	return o, nil
}

// sioPacket is a decoded Socket.IO packet.
type sioPacket struct {
	typ       byte
	namespace string
	data      string
}

// parseSocketPacket decodes the part after the Engine.IO '4' byte:
// type, optional "/ns," prefix, optional ack id, JSON data.
func parseSocketPacket(s string) (sioPacket, error) {
	if s == "" {
		return sioPacket{}, fmt.Errorf("%w: empty socket packet", ErrMalformed)
	}
	p := sioPacket{typ: s[0], namespace: "/"}
	rest := s[1:]
	if strings.HasPrefix(rest, "/") {
		i := strings.IndexByte(rest, ',')
		if i < 0 {
			p.namespace = rest
			return p, nil
		}
		p.namespace, rest = rest[:i], rest[i+1:]
	}
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	p.data = rest[i:]
	return p, nil
}

// decodeEvent splits an event packet's JSON array into name and payload.
// A missing payload decodes as JSON null.
func decodeEvent(data string) (string, json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(data), &parts); err != nil {
		return "", nil, fmt.Errorf("%w: event array: %v", ErrMalformed, err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: empty event array", ErrMalformed)
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %v", ErrMalformed, err)
	}
	if len(parts) == 1 {
		return name, json.RawMessage("null"), nil
	}
	return name, parts[1], nil
}

// encodeEvent builds the text frame for an emit.
func encodeEvent(namespace, name string, payload any) (string, error) {
	data, err := json.Marshal([]any{name, payload})
	if err != nil {
		return "", fmt.Errorf("encode event %q: %w", name, err)
	}
	var b strings.Builder
	b.WriteByte(eioMessage)
	b.WriteByte(sioEvent)
	if namespace != "" && namespace != "/" {
		b.WriteString(namespace)
		b.WriteByte(',')
	}
	b.Write(data)
	return b.String(), nil
}

func connectPacket(namespace string) string {
	if namespace == "" || namespace == "/" {
		return string([]byte{eioMessage, sioConnect})
	}
	return string([]byte{eioMessage, sioConnect}) + namespace + ","
}

func clip(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
