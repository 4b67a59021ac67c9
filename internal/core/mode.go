// Package core is the orchestration layer.  It turns a Config into a
// runnable Mode: the relay server, or one of the client commands that
// talk to it.
//
// Architecture layers (bottom → top):
//
//	transport/session  →  control/stream/directory/admin  →  core  →  cmd (CLI)
package core

import "context"

// Mode is one complete sharerelay invocation.  Each mode owns its
// lifecycle from connection establishment to teardown and returns when
// its work is done or ctx is cancelled.
type Mode interface {
	Run(ctx context.Context) error
}
