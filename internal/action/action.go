// Package action implements the closed action registry: Shell, Copy, Move,
// Remove, Extract, Archive, GitClone, YamlEdit. Dispatch is a Go switch over
// which of the step's eight action fields is non-nil, the same fixed-arity
// pattern the teacher uses in source.go's getSource/getFilter over
// Source's Git/HTTP/DockerImage/... fields, rather than a virtual call
// through an interface a registered plugin implements.
package action

import (
	"github.com/pkg/errors"

	"github.com/dalecbuild/emake/internal/errs"
	"github.com/dalecbuild/emake/internal/loader"
)

// Context carries the collaborators an action implementation needs:
// resolved secret lookups, the compiler for command bodies, and the
// progress sink. It is the per-execution slice of internal/runctx.Context
// relevant to a single action.
type Context struct {
	WorkDir string
	// BuildfilePath is the absolute path of the buildfile that declared the
	// step being executed, the key ResolveSecretByName/ResolveSecret need to
	// anchor a secret reference's lookup — distinct from WorkDir, which is
	// only the directory the action itself runs commands in.
	BuildfilePath string
	Secrets       SecretLookup
	Log           ProgressSink
	Template      TemplateCompiler
}

// SecretLookup resolves a secret by name to its plaintext value, used by
// GitCloneAction's credential fields.
type SecretLookup interface {
	ResolveSecretByName(buildfilePath, name string) (string, error)
}

// TemplateCompiler expands {{ … }} placeholders in a string, used by
// YamlEditAction to compile scalar string values of its declared patch
// before merging them into the target document.
type TemplateCompiler interface {
	CompileString(s string) (string, error)
}

// ProgressSink receives free-form progress lines from a running action,
// forwarded to internal/logger without action needing to import it.
type ProgressSink interface {
	Write(line string)
}

// EnumerateInputs names every input file a step will consume, before
// execution, combining the step's declared in_files with any the action
// variant itself implies (e.g. Copy's From list).
func EnumerateInputs(step loader.Step) []loader.InFileRef {
	refs := append([]loader.InFileRef(nil), step.InFiles...)
	switch {
	case step.Copy != nil:
		for _, f := range step.Copy.From {
			refs = append(refs, loader.InFileRef{File: f})
		}
	case step.Move != nil:
		for _, f := range step.Move.From {
			refs = append(refs, loader.InFileRef{File: f})
		}
	case step.Remove != nil:
		for _, f := range step.Remove.Paths {
			refs = append(refs, loader.InFileRef{File: f})
		}
	case step.Extract != nil:
		refs = append(refs, loader.InFileRef{File: step.Extract.From})
	case step.Archive != nil:
		for _, f := range step.Archive.From {
			refs = append(refs, loader.InFileRef{File: f})
		}
	case step.Yaml != nil && step.Yaml.From != "":
		refs = append(refs, loader.InFileRef{File: step.Yaml.From})
	}
	return refs
}

// EnumerateOutputs names every output file a step will produce, combining
// the step's declared out_files with any the action variant itself implies.
func EnumerateOutputs(step loader.Step) []string {
	outs := append([]string(nil), step.OutFiles...)
	switch {
	case step.Copy != nil:
		outs = append(outs, step.Copy.To...)
	case step.Move != nil:
		outs = append(outs, step.Move.To)
	case step.Extract != nil:
		outs = append(outs, step.Extract.OutFiles...)
	case step.Archive != nil:
		outs = append(outs, step.Archive.To)
	case step.GitClone != nil:
		outs = append(outs, step.GitClone.Destination)
	case step.Yaml != nil:
		to := step.Yaml.To
		if to == "" {
			to = step.Yaml.From
		}
		outs = append(outs, to)
	}
	return outs
}

// DeclaredChecksum returns the step's declared checksum, if any, used by
// the incrementality layer to force a rerun when it differs from the
// stored value.
func DeclaredChecksum(step loader.Step) (string, bool) {
	if step.Checksum == "" {
		return "", false
	}
	return step.Checksum, true
}

// Execute dispatches to the implementation for the step's single action
// variant and runs it with resolvedInputs/resolvedOutputs — the input and
// output paths already template-compiled at schedule time.
func Execute(ctx Context, actionID string, step loader.Step, resolvedInputs []string, resolvedOutputs []string) error {
	var err error
	switch {
	case step.Shell != nil:
		err = runShell(ctx, step.Shell)
	case step.Copy != nil:
		err = runCopy(ctx, resolvedInputs, resolvedOutputs)
	case step.Move != nil:
		err = runMove(ctx, resolvedInputs, resolvedOutputs)
	case step.Remove != nil:
		err = runRemove(ctx, resolvedInputs)
	case step.Extract != nil:
		err = runExtract(ctx, step.Extract, resolvedInputs)
	case step.Archive != nil:
		err = runArchive(ctx, step.Archive, resolvedInputs)
	case step.GitClone != nil:
		err = runGitClone(ctx, step.GitClone)
	case step.Yaml != nil:
		err = runYamlEdit(ctx, step.Yaml)
	default:
		return errors.New("step has no action variant")
	}
	if err != nil {
		return &errs.ActionError{Kind: kindOf(step), ActionID: actionID, Err: err}
	}
	return nil
}

func kindOf(step loader.Step) errs.ActionKind {
	switch {
	case step.Shell != nil:
		return errs.KindShell
	case step.Copy != nil:
		return errs.KindCopy
	case step.Move != nil:
		return errs.KindMove
	case step.Remove != nil:
		return errs.KindRemove
	case step.Extract != nil:
		return errs.KindExtract
	case step.Archive != nil:
		return errs.KindArchive
	case step.GitClone != nil:
		return errs.KindGitClone
	case step.Yaml != nil:
		return errs.KindYamlEdit
	default:
		return ""
	}
}
