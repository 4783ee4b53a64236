package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Middleware parses client options from the CutieCart-Options header and the
// dryrun query parameter and stores them in the request context. The query
// parameter wins over the header. Malformed options and too-new API versions are
// rejected with 400.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			opts, err := ParseOptionsHeader(r.Header.Get(OptionsHeader))
			if err != nil {
				logger.Warn("invalid options header",
					slog.String("header", r.Header.Get(OptionsHeader)),
					slog.String("error", err.Error()))
				writeNegotiationError(w, http.StatusBadRequest, OptionsInvalid, err.Error())
				return
			}

			q, err := ParseDryRunQuery(r.URL.Query().Get("dryrun"))
			if err != nil {
				writeNegotiationError(w, http.StatusBadRequest, OptionsInvalid, err.Error())
				return
			}
			if q != nil {
				opts.DryRun = q
			}

			if err := CheckVersion(opts.APIVersion, ServerAPIVersion); err != nil {
				var verErr *VersionError
				if errors.As(err, &verErr) {
					writeNegotiationError(w, http.StatusBadRequest, verErr.Code, verErr.Message)
					return
				}
				writeNegotiationError(w, http.StatusBadRequest, OptionsInvalid, err.Error())
				return
			}

			ctx := WithOptions(r.Context(), opts)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeNegotiationError writes the standard error envelope.
func writeNegotiationError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = code
	resp.Error.Message = message

	json.NewEncoder(w).Encode(resp)
}

// WithOptions returns a context carrying opts.
func WithOptions(ctx context.Context, opts Options) context.Context {
	return context.WithValue(ctx, OptionsContextKey, opts)
}

// FromContext retrieves the client options. Missing options read as zero Options.
func FromContext(ctx context.Context) Options {
	opts, _ := ctx.Value(OptionsContextKey).(Options)
	return opts
}

// ForMCP builds Options for an MCP tool call, which carries the same choices as
// tool arguments instead of a header.
func ForMCP(dryRun *bool, apiVersion string) (Options, error) {
	if err := CheckVersion(apiVersion, ServerAPIVersion); err != nil {
		return Options{}, err
	}
	return Options{DryRun: dryRun, APIVersion: apiVersion}, nil
}
