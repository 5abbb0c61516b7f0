package secret

import (
	"github.com/dalecbuild/emake/internal/errs"
	"github.com/dalecbuild/emake/internal/loader"
)

// Resolver adapts a Registry and a *loader.Loader into the
// template.SecretResolver contract: resolve a get_secret(...) reference by
// looking up its record in the buildfile and dispatching to the named
// plugin.
type Resolver struct {
	Loader   *loader.Loader
	Registry *Registry
}

func NewResolver(l *loader.Loader, reg *Registry) *Resolver {
	return &Resolver{Loader: l, Registry: reg}
}

// ResolveSecret implements template.SecretResolver.
func (r *Resolver) ResolveSecret(buildfilePath, ref string) (string, error) {
	record, ok, err := r.Loader.LookupSecret(buildfilePath, ref)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &errs.SecretError{Name: ref, Reason: "not found"}
	}
	return r.Registry.Extract(ref, record)
}

// ResolveSecretByName implements internal/action.SecretLookup: GitCloneAction's
// username/password/ssh_key fields name a secret directly, with no
// surrounding get_secret(...) template syntax, so this is the same lookup
// under a name action.Context expects.
func (r *Resolver) ResolveSecretByName(buildfilePath, name string) (string, error) {
	return r.ResolveSecret(buildfilePath, name)
}
