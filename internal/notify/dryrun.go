package notify

import (
	"net"
	"strings"
)

// DryRunSource names the input that decided dry-run mode.
type DryRunSource string

const (
	DryRunFromRequest  DryRunSource = "request"
	DryRunFromSession  DryRunSource = "session"
	DryRunFromConfig   DryRunSource = "config"
	DryRunFromLoopback DryRunSource = "loopback"
	DryRunFromNone     DryRunSource = "none"
)

// DryRunInputs are the candidate signals, highest precedence first.
// Nil pointers mean "not expressed".
type DryRunInputs struct {
	Request *bool // per-request override (query parameter or options header)
	Session *bool // sticky preference stored for the session
	Config  *bool // deployment default

	// Host is the request host, used for loopback auto-detection when
	// LoopbackAutoDetect is enabled and nothing above decided.
	Host               string
	LoopbackAutoDetect bool
}

// ResolveDryRun applies the precedence request > session > config > loopback.
func ResolveDryRun(in DryRunInputs) (bool, DryRunSource) {
	switch {
	case in.Request != nil:
		return *in.Request, DryRunFromRequest
	case in.Session != nil:
		return *in.Session, DryRunFromSession
	case in.Config != nil:
		return *in.Config, DryRunFromConfig
	case in.LoopbackAutoDetect && IsLoopbackHost(in.Host):
		return true, DryRunFromLoopback
	default:
		return false, DryRunFromNone
	}
}

// IsLoopbackHost reports whether host (optionally with port) names this machine:
// localhost, *.localhost, or a loopback IP literal.
func IsLoopbackHost(host string) bool {
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	host = strings.ToLower(strings.TrimSuffix(host, "."))

	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
