// Package protocol defines the line-oriented control protocol spoken on
// the control port: command and reply verbs, line parsing, and the
// SHARES list encoding.
//
// A line is UTF-8 text terminated by '\n' (a trailing '\r' is
// tolerated).  The first space-delimited token is the verb; the rest of
// the line splits into at most two further fields, the last of which
// keeps any embedded spaces.
package protocol

import "strings"

// Client → server commands.
const (
	CmdLogin      = "LOGIN"
	CmdGetShares  = "GET_SHARES"
	CmdStartShare = "START_SHARE"
	CmdStopShare  = "STOP_SHARE"
	CmdViewShare  = "VIEW_SHARE"
	CmdScreenData = "SCREEN_DATA"
	CmdLeaveView  = "LEAVE_VIEW"
)

// Server → client replies and notifications.
const (
	ReplyLoginOK      = "LOGIN_OK"
	ReplyLoginFailed  = "LOGIN_FAILED"
	ReplyShares       = "SHARES"
	ReplyShareStarted = "SHARE_STARTED"
	ReplyShareFailed  = "SHARE_FAILED"
	ReplyShareStopped = "SHARE_STOPPED"
	ReplyViewAccepted = "VIEW_ACCEPTED"
	ReplyViewDenied   = "VIEW_DENIED"
	ReplyScreenData   = CmdScreenData
)

// Line is one parsed protocol line.
type Line struct {
	Verb string
	// Args holds at most two fields after the verb; the second keeps
	// embedded spaces.
	Args []string
	// Rest is everything after the verb and its separating space.
	Rest string
}

// Parse splits a raw line.  It never fails; an empty line yields an
// empty Verb.
func Parse(raw string) Line {
	raw = strings.TrimRight(raw, "\r\n")
	verb, rest, _ := strings.Cut(raw, " ")
	parts := strings.SplitN(raw, " ", 3)
	return Line{Verb: verb, Args: parts[1:], Rest: rest}
}

// Arg returns the i'th field, or "" when absent.
func (l Line) Arg(i int) string {
	if i < len(l.Args) {
		return l.Args[i]
	}
	return ""
}

// String reassembles the line without the terminator.
func (l Line) String() string {
	if l.Rest == "" && len(l.Args) == 0 {
		return l.Verb
	}
	return l.Verb + " " + l.Rest
}

// Format joins a verb and its fields into a line.
func Format(verb string, fields ...string) string {
	if len(fields) == 0 {
		return verb
	}
	return verb + " " + strings.Join(fields, " ")
}

// FormatShares renders a SHARES line.  The separator space is always
// present, so an empty list is "SHARES ".
func FormatShares(names []string) string {
	return ReplyShares + " " + strings.Join(names, ",")
}

// ParseShares decodes the payload of a SHARES line.
func ParseShares(payload string) []string {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil
	}
	var out []string
	for _, name := range strings.Split(payload, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}
