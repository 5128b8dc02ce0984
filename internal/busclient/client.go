// Package busclient is the thin signer side of the control bus: it builds
// a Msg, signs it with the control domain's private key, sends it over
// the daemon's Unix-domain socket, and parses the structured reply.
package busclient

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/controlbus/policyd/internal/envelope"
	"github.com/controlbus/policyd/internal/transport"
)

// Client holds the connection parameters and signing key for building and
// sending envelopes. A connection is not reused across sends: each Send
// dials, sends one framed request, reads one framed reply, and closes.
type Client struct {
	SocketPath string
	PrivateKey ed25519.PrivateKey
}

// New constructs a Client.
func New(socketPath string, priv ed25519.PrivateKey) *Client {
	return &Client{SocketPath: socketPath, PrivateKey: priv}
}

// BuildEnvelope constructs and signs a Msg with the given command and
// args, a fresh random nonce, and the current timestamp.
func (c *Client) BuildEnvelope(command string, args envelope.Object) (envelope.Envelope, error) {
	nonce := make([]byte, envelope.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return envelope.Envelope{}, fmt.Errorf("generate nonce: %w", err)
	}

	msg := envelope.Msg{
		Command:   command,
		Args:      args,
		Nonce:     nonce,
		Timestamp: time.Now().Unix(),
	}

	sig, err := envelope.Sign(c.PrivateKey, msg.ToObject())
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("sign envelope: %w", err)
	}

	return envelope.Envelope{Msg: msg, Signature: sig}, nil
}

// Reply mirrors daemon.Reply's wire shape without importing the daemon
// package (the CLI should not depend on the daemon's internals, only on
// the documented wire contract).
type Reply struct {
	Status string          `json:"status"`
	Error  *ReplyError     `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Doc    json.RawMessage `json:"status_document,omitempty"`
}

// ReplyError mirrors daemon.ReplyError's wire shape.
type ReplyError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Reasons json.RawMessage `json:"reasons,omitempty"`
}

// Send dials the socket, writes env as a single frame, and reads back one
// framed Reply.
func (c *Client) Send(env envelope.Envelope) (*Reply, error) {
	conn, err := net.Dial("unix", c.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.SocketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	if err := transport.WriteFrame(conn, data); err != nil {
		return nil, fmt.Errorf("send envelope: %w", err)
	}

	reader := transport.NewFrameReader(conn)
	frame, err := transport.ReadFrame(reader)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}

	var reply Reply
	if err := json.Unmarshal(frame, &reply); err != nil {
		return nil, fmt.Errorf("parse reply: %w", err)
	}
	return &reply, nil
}
