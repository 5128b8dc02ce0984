// Package daemon implements the control bus's daemon endpoint: a local
// Unix-domain socket server that orchestrates verify -> replay-guard ->
// dispatch for every connection, with single-writer discipline on the
// state-mutating path and concurrent-safe status reads.
package daemon

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/controlbus/policyd/internal/auditlog"
	"github.com/controlbus/policyd/internal/envelope"
	"github.com/controlbus/policyd/internal/policystate"
	"github.com/controlbus/policyd/internal/replayguard"
	"github.com/controlbus/policyd/internal/schema"
	"github.com/controlbus/policyd/internal/transport"
)

// SocketMode is the filesystem permission bits applied to the bound
// socket: owner and group read/write, world no access.
const SocketMode = 0o660

// RuntimeDirMode is the permission bits for the socket's parent directory.
const RuntimeDirMode = 0o750

// RequestTimeout bounds how long a single request read may take before
// the connection is closed.
const RequestTimeout = 5 * time.Second

// ShutdownGrace bounds how long Serve, once its context is cancelled and
// the listener is closed, waits for in-flight handlers to finish before
// removing the socket and returning.
const ShutdownGrace = 3 * time.Second

// Server is the daemon endpoint. Construct with New and run with Serve.
type Server struct {
	core    *policystate.Core
	guard   *replayguard.Guard
	pubKey  ed25519.PublicKey
	schema  *schema.Schema
	audit   *auditlog.Log // nil disables audit logging
	log     *slog.Logger
	version string

	mu          sync.Mutex
	lastApplied int64

	listener net.Listener
	wg       sync.WaitGroup
}

// New constructs a Server. audit may be nil to disable the supplementary
// audit trail.
func New(core *policystate.Core, guard *replayguard.Guard, pubKey ed25519.PublicKey, sch *schema.Schema, audit *auditlog.Log, log *slog.Logger, version string) *Server {
	return &Server{
		core:    core,
		guard:   guard,
		pubKey:  pubKey,
		schema:  sch,
		audit:   audit,
		log:     log,
		version: version,
	}
}

// Bind creates the runtime directory and binds the Unix-domain socket at
// path, removing any stale socket file left by a prior unclean shutdown
// first. The daemon owns the socket path outright and recreates it on
// every start.
func (s *Server) Bind(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, RuntimeDirMode); err != nil {
		return fmt.Errorf("create runtime directory: %w", err)
	}
	if err := os.Chmod(dir, RuntimeDirMode); err != nil {
		return fmt.Errorf("chmod runtime directory: %w", err)
	}

	_ = os.Remove(path) // best-effort: stale socket from an unclean prior shutdown

	l, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, SocketMode); err != nil {
		l.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.listener = l
	return nil
}

// Serve runs the accept loop until ctx is cancelled. On cancellation it
// closes the listener so no new connections are accepted, waits up to
// ShutdownGrace for in-flight handlers, then removes the socket file.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return fmt.Errorf("server not bound: call Bind first")
	}

	path := s.listener.Addr().String()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.listener.Close()
		close(done)
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.log.Info("daemon accept loop stopping: context cancelled")
				s.waitForDrain()
				_ = os.Remove(path)
				<-done
				return ctx.Err()
			default:
				s.log.Error("accept failed", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) waitForDrain() {
	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(ShutdownGrace):
		s.log.Warn("shutdown grace period elapsed with handlers still in flight")
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	correlationID := uuid.Must(uuid.NewV7()).String()
	log := s.log.With("correlation_id", correlationID)

	peerUID, peerGID, err := peerCredentials(conn)
	if err != nil {
		log.Warn("could not read peer credentials", "error", err)
	} else {
		log.Info("connection accepted", "peer_uid", peerUID, "peer_gid", peerGID)
	}

	_ = conn.SetReadDeadline(time.Now().Add(RequestTimeout))
	reader := transport.NewFrameReader(conn)

	frame, err := transport.ReadFrame(reader)
	if err != nil {
		log.Warn("frame read failed", "error", err)
		s.writeAndRecord(conn, log, correlationID, peerUID, peerGID, "", errorReply(frameErrorCode(err), err.Error()), auditlog.OutcomeMalformed, err.Error())
		return
	}

	var env envelope.Envelope
	if err := env.UnmarshalJSON(frame); err != nil {
		log.Warn("parse failed", "error", err)
		s.writeAndRecord(conn, log, correlationID, peerUID, peerGID, "", errorReply(CodeMalformedMessage, err.Error()), auditlog.OutcomeMalformed, err.Error())
		return
	}

	envHash := hashEnvelope(frame)

	if err := envelope.Verify(s.pubKey, env.Msg.ToObject(), env.Signature); err != nil {
		log.Warn("signature verification failed")
		s.writeAndRecordHashed(conn, log, correlationID, peerUID, peerGID, env.Msg.Command, envHash, errorReply(CodeBadSignature, "signature verification failed"), auditlog.OutcomeBadSignature, "")
		return
	}

	ts := time.Unix(env.Msg.Timestamp, 0)
	nonceKey := hex.EncodeToString(env.Msg.Nonce)
	if err := s.guard.Check(nonceKey, ts); err != nil {
		switch err.(type) {
		case *replayguard.ErrStaleEnvelope:
			log.Warn("stale envelope", "timestamp", ts)
			s.writeAndRecordHashed(conn, log, correlationID, peerUID, peerGID, env.Msg.Command, envHash, errorReply(CodeStaleEnvelope, err.Error()), auditlog.OutcomeStale, err.Error())
		default:
			log.Warn("replayed envelope")
			s.writeAndRecordHashed(conn, log, correlationID, peerUID, peerGID, env.Msg.Command, envHash, errorReply(CodeReplayedEnvelope, err.Error()), auditlog.OutcomeReplayed, err.Error())
		}
		return
	}

	reply, outcome, reason := s.dispatch(env, envHash)
	log.Info("envelope processed", "command", env.Msg.Command, "outcome", outcome)
	s.writeAndRecordHashed(conn, log, correlationID, peerUID, peerGID, env.Msg.Command, envHash, reply, outcome, reason)
}

func (s *Server) dispatch(env envelope.Envelope, envHash string) (Reply, auditlog.Outcome, string) {
	switch env.Msg.Command {
	case envelope.CommandSetPolicy:
		result, err := s.core.SetPolicy(env.Msg.Args)
		if err != nil {
			if rej, ok := err.(*policystate.ErrRejectedByPolicy); ok {
				return rejectedReply(rej.Reasons), auditlog.OutcomeRejectedPolicy, err.Error()
			}
			return errorReply(CodePersistenceFailed, err.Error()), auditlog.OutcomePersistenceFailed, err.Error()
		}
		s.mu.Lock()
		s.lastApplied = time.Now().Unix()
		s.mu.Unlock()
		return resultReply(result), auditlog.OutcomeApplied, ""

	case "get_status":
		snap := s.core.Snapshot()
		s.mu.Lock()
		lastApplied := s.lastApplied
		s.mu.Unlock()
		doc := buildStatus(snap, s.version, s.schema.Hash, lastApplied)
		return statusReply(doc), auditlog.OutcomeStatusRead, ""

	default:
		msg := fmt.Sprintf("unrecognized command %q", env.Msg.Command)
		return errorReply(CodeUnknownCommand, msg), auditlog.OutcomeMalformed, msg
	}
}

func (s *Server) writeAndRecord(conn net.Conn, log *slog.Logger, correlationID string, peerUID, peerGID *uint32, command string, reply Reply, outcome auditlog.Outcome, reason string) {
	s.writeAndRecordHashed(conn, log, correlationID, peerUID, peerGID, command, "", reply, outcome, reason)
}

func (s *Server) writeAndRecordHashed(conn net.Conn, log *slog.Logger, correlationID string, peerUID, peerGID *uint32, command, envHash string, reply Reply, outcome auditlog.Outcome, reason string) {
	data, err := json.Marshal(reply)
	if err != nil {
		log.Error("marshal reply failed", "error", err)
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(RequestTimeout))
	if err := transport.WriteFrame(conn, data); err != nil {
		log.Warn("write reply failed", "error", err)
	}

	if s.audit == nil {
		return
	}

	applied, staged, failed := resultKeys(reply)
	rec := auditlog.Disposition{
		CorrelationID: correlationID,
		EnvelopeHash:  envHash,
		Command:       command,
		Outcome:       outcome,
		AppliedKeys:   applied,
		StagedKeys:    staged,
		FailedKeys:    failed,
		RejectReason:  reason,
		PeerUID:       peerUID,
		PeerGID:       peerGID,
		ReceivedAt:    time.Now().Unix(),
	}
	if err := s.audit.Record(context.Background(), rec); err != nil {
		log.Warn("audit record failed", "error", err)
	}
}

func resultKeys(r Reply) (applied, staged, failed []string) {
	if r.Result == nil {
		return nil, nil, nil
	}
	applied = r.Result.Applied
	staged = r.Result.Staged
	for _, f := range r.Result.Failed {
		failed = append(failed, f.Key)
	}
	return applied, staged, failed
}

func frameErrorCode(err error) string {
	if _, ok := err.(*transport.ErrFrameTooLarge); ok {
		return CodeFrameTooLarge
	}
	return CodeMalformedMessage
}

func hashEnvelope(frame []byte) string {
	sum := sha256.Sum256(frame)
	return hex.EncodeToString(sum[:])
}

func peerCredentials(conn net.Conn) (uid, gid *uint32, err error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, nil, fmt.Errorf("not a unix socket connection")
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return nil, nil, err
	}

	var ucred *unix.Ucred
	var sockErr error
	ctlErr := raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctlErr != nil {
		return nil, nil, ctlErr
	}
	if sockErr != nil {
		return nil, nil, sockErr
	}

	u := ucred.Uid
	g := ucred.Gid
	return &u, &g, nil
}

