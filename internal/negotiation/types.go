// Package negotiation reads the per-request client options carried by the
// CutieCart-Options header (an RFC 8941 dictionary) and the dryrun query parameter.
// REST requests go through Middleware; MCP tool calls build Options explicitly.
package negotiation

// OptionsHeader is the request header carrying client options.
//
//	CutieCart-Options: dry-run=?1, api="v1.0.0"
const OptionsHeader = "CutieCart-Options"

// ServerAPIVersion is the API version this server speaks.
const ServerAPIVersion = "v1.0.0"

// Options are the client's per-request choices.
type Options struct {
	// DryRun overrides notification dry-run for this request only; nil means
	// the client did not say.
	DryRun *bool

	// APIVersion is the version the client was written against, if given.
	APIVersion string
}

// contextKey is the type for context values to avoid collisions
type contextKey string

// OptionsContextKey is the context key for storing Options
const OptionsContextKey contextKey = "cutiecart.options"

// Error codes written by the middleware.
const (
	OptionsInvalid     = "options_invalid"
	VersionUnsupported = "version_unsupported"
)
