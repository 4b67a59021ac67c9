package control

import (
	"sharerelay/internal/errors"
	"sharerelay/internal/protocol"
	"sharerelay/internal/session"
)

// LOGIN <user>
func (srv *Server) login(sess *session.Session, line protocol.Line) error {
	if len(line.Args) != 1 || line.Args[0] == "" {
		return reject(sess, protocol.ReplyLoginFailed, errors.Protocol(line.Verb, errors.ErrMalformed))
	}
	user := line.Args[0]
	if err := sess.Bind(user); err != nil {
		return reject(sess, protocol.ReplyLoginFailed, errors.Protocol(line.Verb, err))
	}

	if prev := srv.Registry.Register(sess); prev != nil {
		sess.Logger.Infow("login displaced an older session", "user", user)
	}
	sess.Logger.Infow("logged in", "user", user)

	if err := sess.Send(protocol.Format(protocol.ReplyLoginOK, user)); err != nil {
		return err
	}
	return sess.Send(protocol.FormatShares(srv.Registry.ShareNames()))
}

// START_SHARE <password>
//
// The secret is the rest of the line, so it may contain spaces.
func (srv *Server) startShare(sess *session.Session, line protocol.Line) error {
	if !sess.Authenticated() {
		return reject(sess, protocol.ReplyShareFailed, errors.Protocol(line.Verb, errors.ErrNotLoggedIn))
	}
	secret := line.Rest
	if secret == "" {
		return reject(sess, protocol.ReplyShareFailed, errors.Protocol(line.Verb, errors.ErrEmptySecret))
	}

	user := sess.Username()
	if prev, displaced := srv.Registry.StartShare(sess, secret); prev != nil {
		srv.notifyStopped(user, displaced)
	}
	// Announce before replying: the client dials the stream port as
	// soon as it reads SHARE_STARTED.
	srv.Announcer.AnnouncePublisher(user)
	sess.Logger.Infow("share started", "user", user)

	err := sess.Send(protocol.ReplyShareStarted)
	srv.broadcastShares()
	return err
}

// STOP_SHARE
func (srv *Server) stopShare(sess *session.Session) error {
	user := sess.Username()
	if viewers, ok := srv.Registry.StopShare(sess); ok {
		srv.notifyStopped(user, viewers)
		sess.Logger.Infow("share stopped", "user", user, "viewers", len(viewers))
	}

	err := sess.Send(protocol.ReplyShareStopped)
	srv.broadcastShares()
	return err
}

// VIEW_SHARE <target> <password>
func (srv *Server) viewShare(sess *session.Session, line protocol.Line) error {
	if len(line.Args) < 2 || line.Args[0] == "" {
		return reject(sess, protocol.ReplyViewDenied, errors.Protocol(line.Verb, errors.ErrMalformed))
	}
	if !sess.Authenticated() {
		return reject(sess, protocol.ReplyViewDenied, errors.Protocol(line.Verb, errors.ErrNotLoggedIn))
	}

	target, secret := line.Args[0], line.Args[1]
	if err := srv.Registry.AddViewer(target, secret, sess); err != nil {
		return reject(sess, protocol.ReplyViewDenied, errors.Protocol(line.Verb, err))
	}

	srv.Announcer.AnnounceViewer(target)
	sess.Logger.Infow("viewer admitted", "user", sess.Username(), "target", target)
	return sess.Send(protocol.Format(protocol.ReplyViewAccepted, target))
}

// SCREEN_DATA <payload>
//
// Legacy in-band frames.  The payload is forwarded verbatim to every
// viewer of the sender's share; a sender that is not sharing is
// ignored.
func (srv *Server) screenData(sess *session.Session, line protocol.Line) {
	share := srv.Registry.SharingBy(sess)
	if share == nil {
		return
	}
	out := protocol.Format(protocol.ReplyScreenData, line.Rest)
	for _, v := range share.Viewers() {
		if err := v.Send(out); err != nil {
			sess.Logger.Debugw("screen data forward failed", "viewer", v.Username(), "error", err)
		}
	}
}

// LEAVE_VIEW <target>
func (srv *Server) leaveView(sess *session.Session, line protocol.Line) {
	target := line.Arg(0)
	if target == "" {
		return
	}
	if srv.Registry.RemoveViewer(target, sess) {
		sess.Logger.Infow("viewer left", "user", sess.Username(), "target", target)
	}
}
