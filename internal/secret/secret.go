// Package secret implements the credential plugin contract: extract(record)
// -> string, with the two standard plugins named in the external
// interfaces section — plain (base64-decoded literal) and keyring (OS
// keychain lookup). Grounded on original_source/src/secrets.rs's plugin
// trait + registry, reimplemented as a Go interface and map-backed
// registry rather than a trait object, the same "closed set, fixed
// dispatch" idiom internal/action uses for the action registry.
package secret

import (
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"

	"github.com/dalecbuild/emake/internal/errs"
	"github.com/dalecbuild/emake/internal/loader"
)

// Plugin extracts the plaintext value of a secret record.
type Plugin interface {
	Extract(record loader.SecretRecord) (string, error)
}

// Registry dispatches a secret record to its named plugin by Type.
type Registry struct {
	plugins map[string]Plugin
}

// NewRegistry returns a Registry with the two standard plugins (plain,
// keyring) registered.
func NewRegistry() *Registry {
	return &Registry{
		plugins: map[string]Plugin{
			"plain":   plainPlugin{},
			"keyring": keyringPlugin{},
		},
	}
}

// Register installs or replaces the plugin for a given type name.
func (r *Registry) Register(typ string, p Plugin) {
	r.plugins[typ] = p
}

// Extract resolves record to its plaintext value via the plugin named by
// record.Type.
func (r *Registry) Extract(name string, record loader.SecretRecord) (string, error) {
	p, ok := r.plugins[record.Type]
	if !ok {
		return "", &errs.SecretError{Name: name, Reason: "unknown secret type " + record.Type}
	}
	v, err := p.Extract(record)
	if err != nil {
		return "", &errs.SecretError{Name: name, Reason: err.Error()}
	}
	return v, nil
}

// plainPlugin decodes a base64-encoded literal stored directly in the
// buildfile.
type plainPlugin struct{}

func (plainPlugin) Extract(record loader.SecretRecord) (string, error) {
	if record.Secret == "" {
		return "", errors.New("plain secret missing 'secret' field")
	}
	dec, err := base64.StdEncoding.DecodeString(record.Secret)
	if err != nil {
		return "", errors.Wrap(err, "decode plain secret")
	}
	return string(dec), nil
}

// keyringPlugin looks up a value in the OS keychain by service/name.
type keyringPlugin struct{}

func (keyringPlugin) Extract(record loader.SecretRecord) (string, error) {
	if record.Service == "" || record.Name == "" {
		return "", errors.New("keyring secret requires 'service' and 'name' fields")
	}
	v, err := keyring.Get(record.Service, record.Name)
	if err != nil {
		return "", errors.Wrapf(err, "keyring lookup %s/%s", record.Service, record.Name)
	}
	return v, nil
}

// Store writes value into the OS keychain under service/name, refusing to
// overwrite an existing entry unless force is set — matching
// original_source's "keyring store" refusing an overwrite without an
// explicit clear first.
func Store(service, name, value string, force bool) error {
	if !force {
		if _, err := keyring.Get(service, name); err == nil {
			return errors.Errorf("keyring entry %s/%s already exists; clear it first", service, name)
		}
	}
	return keyring.Set(service, name, value)
}

// Clear removes a keyring entry.
func Clear(service, name string) error {
	return keyring.Delete(service, name)
}

// ReadStdinSecret reads a single secret value from stdin (no trailing
// newline), the interactive-store mechanism original_source's
// commands/keyring.rs uses instead of a flag.
func ReadStdinSecret(r io.Reader) (string, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(err, "read secret from stdin")
	}
	s := string(buf)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s, nil
}
