package privilege

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/lockdown/internal/config"
	"github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/logger"
)

// GrantFilename is the consent record inside the state directory.
const GrantFilename = "grant.yaml"

// DefaultReason is the explanation shown in the consent prompt.
const DefaultReason = "Lockdown needs Device Admin privileges to lock your screen on schedule."

// Gate answers privilege queries and runs the consent flow.
type Gate interface {
	// IsGranted is a cheap, uncached query.
	IsGranted(ctx context.Context) lockdown.PrivilegeStatus
	// RequestGrant asks the user for consent once; it does not retry.
	RequestGrant(ctx context.Context, reason string) (lockdown.GrantOutcome, error)
}

// Prompter asks the user a yes/no question.
type Prompter interface {
	// Confirm returns the answer, ErrPromptAborted if the user backed out,
	// or another error if no answer could be collected.
	Confirm(ctx context.Context, title, description string) (bool, error)
}

// ActorFunc identifies the consenting user.
type ActorFunc func() (*lockdown.Actor, error)

// ErrPromptAborted is returned by a Prompter when the user cancels the question.
var ErrPromptAborted = errors.New("prompt aborted")

// grantRecord is the on-disk YAML shape of a Grant.
type grantRecord struct {
	// ID uniquely identifies the grant.
	ID string `yaml:"id"`
	// GrantedAt is the consent timestamp.
	GrantedAt time.Time `yaml:"granted_at"`
	// Hostname is where consent was given.
	Hostname string `yaml:"hostname,omitempty"`
	// Username is who consented.
	Username string `yaml:"username,omitempty"`
	// Reason is the explanation that was shown.
	Reason string `yaml:"reason,omitempty"`
}

// FileGate stores the privilege as a consent file.
type FileGate struct {
	// path is the consent file location.
	path string
	// prompter collects consent; nil means consent can never be requested.
	prompter Prompter
	// actor identifies the consenting user.
	actor ActorFunc
	// now stamps new grants.
	now func() time.Time
}

var _ Gate = (*FileGate)(nil)

// Option configures a FileGate.
type Option func(*FileGate)

// WithPrompter sets the consent prompter.
func WithPrompter(p Prompter) Option {
	return func(g *FileGate) {
		g.prompter = p
	}
}

// WithActor sets the actor detector.
func WithActor(fn ActorFunc) Option {
	return func(g *FileGate) {
		g.actor = fn
	}
}

// WithNow overrides the timestamp source.
func WithNow(fn func() time.Time) Option {
	return func(g *FileGate) {
		g.now = fn
	}
}

var errNoPrompter = errors.New("no consent prompter configured")

// NewFileGate creates a gate backed by path.
func NewFileGate(path string, opts ...Option) *FileGate {
	gate := &FileGate{
		path: filepath.Clean(path),
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(gate)
	}

	return gate
}

// Path returns the consent file location.
func (g *FileGate) Path() string {
	return g.path
}

// IsGranted reads the consent file; an unreadable or malformed file counts as not granted.
func (g *FileGate) IsGranted(ctx context.Context) lockdown.PrivilegeStatus {
	grant, err := g.Current(ctx)
	if err != nil || grant == nil {
		return lockdown.NotGranted
	}

	return lockdown.Granted
}

// Current returns the stored grant, or nil if none exists.
func (g *FileGate) Current(_ context.Context) (*lockdown.Grant, error) {
	contents, err := os.ReadFile(g.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read grant: %w", err)
	}

	var record grantRecord
	if err = yaml.Unmarshal(contents, &record); err != nil {
		return nil, fmt.Errorf("decode grant: %w", err)
	}

	if record.ID == "" {
		return nil, nil
	}

	grant := &lockdown.Grant{
		ID:        record.ID,
		GrantedAt: record.GrantedAt,
		Reason:    record.Reason,
	}

	if record.Hostname != "" || record.Username != "" {
		grant.GrantedBy = &lockdown.Actor{
			Hostname: record.Hostname,
			Username: record.Username,
		}
	}

	return grant, nil
}

// RequestGrant prompts for consent and records it on approval.
func (g *FileGate) RequestGrant(ctx context.Context, reason string) (lockdown.GrantOutcome, error) {
	if g.IsGranted(ctx) == lockdown.Granted {
		return lockdown.GrantGranted, nil
	}

	if g.prompter == nil {
		return lockdown.GrantCancelled, errNoPrompter
	}

	if reason == "" {
		reason = DefaultReason
	}

	approved, err := g.prompter.Confirm(ctx, "Enable Device Admin for lockdown?", reason)

	switch {
	case errors.Is(err, ErrPromptAborted), errors.Is(err, context.Canceled):
		logger.Info(ctx, "Consent request cancelled")

		return lockdown.GrantCancelled, nil
	case err != nil:
		return lockdown.GrantCancelled, fmt.Errorf("ask for consent: %w", err)
	case !approved:
		logger.Info(ctx, "Consent request denied")

		return lockdown.GrantDenied, nil
	}

	if err = g.write(reason); err != nil {
		return lockdown.GrantDenied, err
	}

	logger.InfoKV(ctx, "Privilege granted", "grant_file", g.path)

	return lockdown.GrantGranted, nil
}

// Revoke removes the consent record; revoking twice is not an error.
func (g *FileGate) Revoke(ctx context.Context) error {
	if err := os.Remove(g.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove grant: %w", err)
	}

	logger.InfoKV(ctx, "Privilege revoked", "grant_file", g.path)

	return nil
}

func (g *FileGate) write(reason string) error {
	record := grantRecord{
		ID:        uuid.NewString(),
		GrantedAt: g.now().UTC(),
		Reason:    reason,
	}

	if g.actor != nil {
		if actor, err := g.actor(); err == nil && actor != nil {
			record.Hostname = actor.Hostname
			record.Username = actor.Username
		}
	}

	data, err := yaml.Marshal(&record)
	if err != nil {
		return fmt.Errorf("encode grant: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(g.path), config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create grant directory: %w", err)
	}

	if err = os.WriteFile(g.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write grant: %w", err)
	}

	return nil
}
