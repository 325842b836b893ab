//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"

	"github.com/oshokin/lockdown/internal/domain/lockdown"
)

// DetectActor gathers host and user information for the grant audit trail.
func DetectActor() (*lockdown.Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &lockdown.Actor{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}
