package router

import "strings"

// transientSignatures are the connectivity-failure fragments worth retrying
// or serving from the mirror. Matching is against the error's message text
// rather than an error code: the underlying client surfaces heterogeneous
// error shapes (dial errors, resolver errors, server shutdown notices) and
// the message is the one discriminator they all share.
var transientSignatures = []string{
	"connection refused",
	"could not connect",
	"connection timed out",
	"server closed the connection",
	"connection not open",
	"no such host",
	"terminating connection due to administrator command",
}

// IsTransient reports whether err looks like a connectivity problem that a
// retry or a backend switch could resolve. Syntax errors, missing
// relations and other query-shaped failures are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
