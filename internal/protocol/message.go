// Package protocol defines the wire messages exchanged between hokaido
// broadcasters, watchers, and the server.
//
// Every message is a MessagePack fixarray, a tagged tuple whose arity the
// receiver always knows ahead of decoding, so the stream is self-delimiting
// without any extra length framing. The leading element distinguishes the
// handshake (0) from a streamed notification (2), matching the wire layout
// the server and clients agree on before a single byte of shell output ever
// moves.
package protocol

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Role identifies which side of the handshake a connection is joining as.
type Role string

const (
	RoleBroadcast Role = "broadcast"
	RoleWatch     Role = "watch"
)

// Topic identifies the kind of payload carried by a Notification.
type Topic string

const (
	TopicOutput        Topic = "out"
	TopicClosed        Topic = "closed"
	TopicWatcherJoined Topic = "watcher_joined"
)

// Sentinel errors. A DecodeError or UnknownMessage on a connection is
// always fatal to that connection (§4.1, §7).
var (
	ErrUnknownMessage = errors.New("protocol: unknown message")
)

// EncodeError wraps a failure to serialize or write a message.
type EncodeError struct{ Err error }

func (e *EncodeError) Error() string { return fmt.Sprintf("protocol: encode: %v", e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError wraps a failure to read or deserialize a message.
type DecodeError struct{ Err error }

func (e *DecodeError) Error() string { return fmt.Sprintf("protocol: decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// JoinRequest is the first message sent by any client: (0, 0, role, channel).
type JoinRequest struct {
	Role    Role
	Channel string
}

// JoinResponse is the server's reply to a JoinRequest: (0, 0, "", success).
type JoinResponse struct {
	Success bool
}

// Notification is the streamed message family exchanged after a successful
// handshake: (2, topic, payload).
type Notification struct {
	Topic   Topic
	Payload string
}

// Output builds a Notification carrying raw PTY bytes.
func Output(data []byte) Notification {
	return Notification{Topic: TopicOutput, Payload: string(data)}
}

// Closed builds a Notification telling the peer its session ended.
func Closed(reason string) Notification {
	return Notification{Topic: TopicClosed, Payload: reason}
}

// WatcherJoined builds a Notification telling a broadcaster a watcher arrived.
func WatcherJoined() Notification {
	return Notification{Topic: TopicWatcherJoined}
}

// Encoder writes framed messages to an underlying stream.
type Encoder struct {
	enc *msgpack.Encoder
}

// NewEncoder wraps w for writing protocol messages.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: msgpack.NewEncoder(w)}
}

// EncodeJoinRequest writes a (0, 0, role, channel) tuple.
func (e *Encoder) EncodeJoinRequest(req JoinRequest) error {
	if err := e.enc.EncodeArrayLen(4); err != nil {
		return &EncodeError{err}
	}
	for _, v := range []interface{}{uint8(0), uint8(0), string(req.Role), req.Channel} {
		if err := e.enc.Encode(v); err != nil {
			return &EncodeError{err}
		}
	}
	return nil
}

// EncodeJoinResponse writes a (0, 0, "", success) tuple.
func (e *Encoder) EncodeJoinResponse(resp JoinResponse) error {
	if err := e.enc.EncodeArrayLen(4); err != nil {
		return &EncodeError{err}
	}
	for _, v := range []interface{}{uint8(0), uint8(0), "", resp.Success} {
		if err := e.enc.Encode(v); err != nil {
			return &EncodeError{err}
		}
	}
	return nil
}

// EncodeNotification writes a (2, topic, payload) tuple.
func (e *Encoder) EncodeNotification(n Notification) error {
	if err := e.enc.EncodeArrayLen(3); err != nil {
		return &EncodeError{err}
	}
	for _, v := range []interface{}{uint8(2), string(n.Topic), n.Payload} {
		if err := e.enc.Encode(v); err != nil {
			return &EncodeError{err}
		}
	}
	return nil
}

// Decoder reads framed messages from an underlying stream.
type Decoder struct {
	dec *msgpack.Decoder
}

// NewDecoder wraps r for reading protocol messages.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: msgpack.NewDecoder(r)}
}

// DecodeJoinRequest reads and validates a (0, 0, role, channel) tuple.
func (d *Decoder) DecodeJoinRequest() (JoinRequest, error) {
	if _, err := d.dec.DecodeArrayLen(); err != nil {
		return JoinRequest{}, &DecodeError{err}
	}
	if _, err := d.dec.DecodeUint8(); err != nil {
		return JoinRequest{}, &DecodeError{err}
	}
	if _, err := d.dec.DecodeUint8(); err != nil {
		return JoinRequest{}, &DecodeError{err}
	}
	role, err := d.dec.DecodeString()
	if err != nil {
		return JoinRequest{}, &DecodeError{err}
	}
	channel, err := d.dec.DecodeString()
	if err != nil {
		return JoinRequest{}, &DecodeError{err}
	}
	switch Role(role) {
	case RoleBroadcast, RoleWatch:
		return JoinRequest{Role: Role(role), Channel: channel}, nil
	default:
		return JoinRequest{}, ErrUnknownMessage
	}
}

// DecodeJoinResponse reads a (0, 0, "", success) tuple.
func (d *Decoder) DecodeJoinResponse() (JoinResponse, error) {
	if _, err := d.dec.DecodeArrayLen(); err != nil {
		return JoinResponse{}, &DecodeError{err}
	}
	if _, err := d.dec.DecodeUint8(); err != nil {
		return JoinResponse{}, &DecodeError{err}
	}
	if _, err := d.dec.DecodeUint8(); err != nil {
		return JoinResponse{}, &DecodeError{err}
	}
	if _, err := d.dec.DecodeString(); err != nil {
		return JoinResponse{}, &DecodeError{err}
	}
	success, err := d.dec.DecodeBool()
	if err != nil {
		return JoinResponse{}, &DecodeError{err}
	}
	return JoinResponse{Success: success}, nil
}

// DecodeNotification reads and validates a (2, topic, payload) tuple.
func (d *Decoder) DecodeNotification() (Notification, error) {
	if _, err := d.dec.DecodeArrayLen(); err != nil {
		return Notification{}, &DecodeError{err}
	}
	if _, err := d.dec.DecodeUint8(); err != nil {
		return Notification{}, &DecodeError{err}
	}
	topic, err := d.dec.DecodeString()
	if err != nil {
		return Notification{}, &DecodeError{err}
	}
	payload, err := d.dec.DecodeString()
	if err != nil {
		return Notification{}, &DecodeError{err}
	}
	switch Topic(topic) {
	case TopicOutput, TopicClosed, TopicWatcherJoined:
		return Notification{Topic: Topic(topic), Payload: payload}, nil
	default:
		return Notification{}, ErrUnknownMessage
	}
}
