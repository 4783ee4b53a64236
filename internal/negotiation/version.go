package negotiation

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// VersionError is returned when a client needs a newer API than the server has.
type VersionError struct {
	Code          string
	Message       string
	ClientVersion string
	ServerVersion string
}

func (e *VersionError) Error() string {
	return e.Message
}

// CheckVersion accepts clients on the server's major version or older.
// An empty client version is accepted. Non-semver versions are rejected.
func CheckVersion(client, server string) error {
	if strings.TrimSpace(client) == "" {
		return nil
	}
	cv, sv := normalizeVersion(client), normalizeVersion(server)
	if !semver.IsValid(cv) {
		return &VersionError{
			Code:          OptionsInvalid,
			Message:       fmt.Sprintf("api version %q is not a semantic version", client),
			ClientVersion: client,
			ServerVersion: server,
		}
	}
	if semver.Compare(semver.Major(cv), semver.Major(sv)) > 0 {
		return &VersionError{
			Code:          VersionUnsupported,
			Message:       fmt.Sprintf("client requires api %s, server supports %s", client, server),
			ClientVersion: client,
			ServerVersion: server,
		}
	}
	return nil
}

// normalizeVersion adds "v" prefix if needed for semver parsing.
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
