package loader

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"github.com/dalecbuild/emake/internal/errs"
	"github.com/dalecbuild/emake/internal/pathmodel"
)

// Kind names one of the three buildfile sub-maps a lookup may target.
type Kind string

const (
	KindTargets   Kind = "targets"
	KindVariables Kind = "variables"
	KindSecrets   Kind = "secrets"
)

// Loader parses buildfiles into Documents and caches them per absolute
// path, guaranteeing at-most-one parse per path per run (spec §4.2, §8).
// The cache is reader-preferring (RWMutex): lookups that hit take only the
// read lock, only a miss takes the write path.
type Loader struct {
	mu    sync.RWMutex
	byAbs map[string]*Document
}

func New() *Loader {
	return &Loader{byAbs: make(map[string]*Document)}
}

// Load reads and parses the buildfile at absPath, or returns the
// already-cached Document if this path has been parsed before in this
// Loader's lifetime.
func (l *Loader) Load(absPath string) (*Document, error) {
	absPath = filepath.Clean(absPath)

	l.mu.RLock()
	if doc, ok := l.byAbs[absPath]; ok {
		l.mu.RUnlock()
		return doc, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Re-check under the write lock: another goroutine may have parsed this
	// path while we waited.
	if doc, ok := l.byAbs[absPath]; ok {
		return doc, nil
	}

	doc, err := parseFile(absPath)
	if err != nil {
		return nil, err
	}

	l.byAbs[absPath] = doc
	return doc, nil
}

func parseFile(absPath string) (*Document, error) {
	dt, err := os.ReadFile(absPath)
	if err != nil {
		return nil, &errs.LoaderError{Path: absPath, Err: err}
	}

	var doc Document
	if err := yaml.UnmarshalContext(context.Background(), dt, &doc, yaml.Strict()); err != nil {
		return nil, &errs.LoaderError{Path: absPath, Err: errors.Wrap(err, "parse error")}
	}
	doc.Path = absPath

	for name, tgt := range doc.Targets {
		for i, step := range tgt.Steps {
			if err := step.Validate(); err != nil {
				return nil, &errs.LoaderError{
					Path: absPath,
					Err:  errors.Wrapf(err, "target %q step %d", name, i),
				}
			}
		}
	}

	return &doc, nil
}

// LookupTarget returns the target named by an already-normalized target id
// (see pathmodel.Normalize) from its buildfile, parsing that buildfile as
// needed. It does not normalize the id itself.
func (l *Loader) LookupTarget(normalizedID string) (Target, *Document, error) {
	doc, name, err := l.loadForID(normalizedID)
	if err != nil {
		return Target{}, nil, err
	}
	tgt, ok := doc.Targets[name]
	if !ok {
		return Target{}, nil, &errs.ResolverError{Ref: normalizedID, Reason: "target not found in buildfile"}
	}
	return tgt, doc, nil
}

// LookupVariable resolves a variable name against the document at
// buildfilePath.
func (l *Loader) LookupVariable(buildfilePath, name string) (string, bool, error) {
	doc, err := l.Load(buildfilePath)
	if err != nil {
		return "", false, err
	}
	v, ok := doc.Variables[name]
	return v, ok, nil
}

// LookupSecret resolves a secret record by name against the document at
// buildfilePath.
func (l *Loader) LookupSecret(buildfilePath, name string) (SecretRecord, bool, error) {
	doc, err := l.Load(buildfilePath)
	if err != nil {
		return SecretRecord{}, false, err
	}
	rec, ok := doc.Secrets[name]
	return rec, ok, nil
}

// loadForID parses the buildfile a normalized target id points at and
// returns it along with the bare target name.
func (l *Loader) loadForID(normalizedID string) (*Document, string, error) {
	buildfilePath, err := pathmodel.ToBuildfilePath(normalizedID)
	if err != nil {
		return nil, "", err
	}
	name, err := pathmodel.TargetName(normalizedID)
	if err != nil {
		return nil, "", err
	}
	doc, err := l.Load(buildfilePath)
	if err != nil {
		return nil, "", err
	}
	return doc, name, nil
}
