// Package control implements the control port: one session per
// accepted connection, each running the line-protocol state machine
// against the shared registry.
package control

import (
	"bufio"
	"context"
	"net"
	"time"

	"sharerelay/internal/errors"
	"sharerelay/internal/metrics"
	"sharerelay/internal/protocol"
	"sharerelay/internal/registry"
	"sharerelay/internal/session"
	"sharerelay/util"
)

// Announcer is told which users are about to open a stream connection.
type Announcer interface {
	AnnouncePublisher(user string)
	AnnounceViewer(target string)
}

// Server handles control connections.  It holds no protocol state of
// its own; everything shared lives in Registry.
type Server struct {
	Registry  *registry.Registry
	Announcer Announcer
	Logger    *util.Logger
	Metrics   *metrics.Collector

	// IdleTimeout closes a session that sends nothing for this long;
	// zero disables it.
	IdleTimeout time.Duration
	// WriteTimeout bounds each line written to a session; zero
	// disables it.
	WriteTimeout time.Duration
}

// NewServer creates a control server over reg that announces streams
// to ann.
func NewServer(reg *registry.Registry, ann Announcer, logger *util.Logger, m *metrics.Collector) *Server {
	if logger == nil {
		logger = util.NopLogger()
	}
	return &Server{
		Registry:  reg,
		Announcer: ann,
		Logger:    logger.Named("control"),
		Metrics:   m,
	}
}

// ServeConn runs one control session until the peer disconnects, a
// read fails, or ctx is cancelled.  Disconnect cleanup always runs.
func (srv *Server) ServeConn(ctx context.Context, conn net.Conn) error {
	sess := session.New(conn, srv.Logger)
	sess.WriteTimeout = srv.WriteTimeout

	srv.Metrics.SessionOpened()
	defer srv.Metrics.SessionClosed()

	stop := context.AfterFunc(ctx, func() { sess.Close() }) //nolint:errcheck
	defer stop()

	sess.Logger.Infow("control session opened")
	defer func() {
		srv.disconnect(sess)
		sess.Close() //nolint:errcheck
		sess.Logger.Infow("control session closed", "user", sess.Username())
	}()

	r := bufio.NewReader(conn)
	for {
		if srv.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(srv.IdleTimeout)) //nolint:errcheck
		}
		line, err := r.ReadString('\n')
		if line != "" {
			srv.dispatch(sess, line)
		}
		if err != nil {
			if util.IsHarmless(err) || ctx.Err() != nil {
				return nil
			}
			sess.Logger.Debugw("control read failed", "error", err)
			return errors.Wrap("read", conn.RemoteAddr().String(), err)
		}
	}
}

// dispatch runs one command.  Rejected commands have already been
// answered by the handler; unknown verbs are ignored.
func (srv *Server) dispatch(sess *session.Session, raw string) {
	line := protocol.Parse(raw)

	var err error
	switch line.Verb {
	case protocol.CmdLogin:
		err = srv.login(sess, line)
	case protocol.CmdGetShares:
		err = sess.Send(protocol.FormatShares(srv.Registry.ShareNames()))
	case protocol.CmdStartShare:
		err = srv.startShare(sess, line)
	case protocol.CmdStopShare:
		err = srv.stopShare(sess)
	case protocol.CmdViewShare:
		err = srv.viewShare(sess, line)
	case protocol.CmdScreenData:
		srv.screenData(sess, line)
	case protocol.CmdLeaveView:
		srv.leaveView(sess, line)
	default:
		if line.Verb != "" {
			sess.Logger.Debugw("unknown command ignored", "command", line.Verb)
		}
		return
	}

	rejected := errors.IsProtocol(err)
	srv.Metrics.CommandHandled(rejected)
	switch {
	case rejected:
		sess.Logger.Infow("command rejected", "command", line.Verb, "reason", errors.ReasonOf(err))
	case err != nil:
		srv.Metrics.RecordError(err.Error())
		sess.Logger.Warnw("reply failed", "command", line.Verb, "error", err)
	}
}

// reject sends "<verb> <reason>" and returns the protocol error.
func reject(sess *session.Session, verb string, pe *errors.ProtocolError) error {
	if err := sess.Send(protocol.Format(verb, pe.Reason)); err != nil {
		return errors.Join(pe, err)
	}
	return pe
}

// broadcastShares sends the current share list to every session.
func (srv *Server) broadcastShares() {
	sent, failed := srv.Registry.BroadcastShareList(protocol.FormatShares)
	srv.Logger.Debugw("share list broadcast", "sent", sent, "failed", failed)
}

// notifyStopped tells each viewer that owner's share has ended.
func (srv *Server) notifyStopped(owner string, viewers []registry.Peer) {
	line := protocol.Format(protocol.ReplyShareStopped, owner)
	for _, v := range viewers {
		if err := v.Send(line); err != nil {
			srv.Logger.Warnw("share stop notice failed", "owner", owner, "viewer", v.Username(), "error", err)
		}
	}
}

// disconnect removes every trace of sess from the registry, in order:
// the username mapping, its own share (viewers are told), its place in
// other shares' viewer sets, then a share-list broadcast if it had
// been sharing.
func (srv *Server) disconnect(sess *session.Session) {
	if !sess.Authenticated() {
		return
	}
	user := sess.Username()
	srv.Registry.Unregister(sess)

	viewers, wasSharing := srv.Registry.StopShare(sess)
	if wasSharing {
		srv.notifyStopped(user, viewers)
	}

	if owners := srv.Registry.RemoveViewerEverywhere(sess); len(owners) > 0 {
		sess.Logger.Debugw("viewer removed on disconnect", "user", user, "shares", owners)
	}

	if wasSharing {
		sess.Logger.Infow("share ended by disconnect", "user", user, "viewers", len(viewers))
		srv.broadcastShares()
	}
}
