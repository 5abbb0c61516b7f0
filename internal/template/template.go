// Package template implements the {{ … }} placeholder compiler: a pure
// string→string function over a buildfile-relative string, with the
// loader's variables and the secret registry as read-only collaborators.
//
// The grammar (bare_name, ${name}, glob("pat"), get_secret("ref")) is a
// bespoke invention of this engine's buildfile format, not Dockerfile-shell
// $VAR expansion, so this is a small hand-written matcher over stdlib
// regexp and strings rather than a reuse of
// moby/buildkit/frontend/dockerfile/shell (see DESIGN.md).
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/shlex"
	"github.com/pkg/errors"

	"github.com/dalecbuild/emake/internal/errs"
)

// MaxDepth bounds get_secret's argument re-compilation, preventing
// unbounded recursion (spec §9's template-compiler re-entrancy note).
const MaxDepth = 16

var (
	placeholderRe = regexp.MustCompile(`\{\{(.*?)\}\}`)
	runtimeVarRe  = regexp.MustCompile(`\$\{([^}]+)\}`)
)

// VariableLookup resolves a user-defined variable by name, relative to a
// buildfile path. Satisfied by *loader.Loader in production.
type VariableLookup interface {
	LookupVariable(buildfilePath, name string) (string, bool, error)
}

// SecretResolver resolves a secret reference (as written inside
// get_secret(...)) to its plaintext value.
type SecretResolver interface {
	ResolveSecret(buildfilePath, ref string) (string, error)
}

// Compiler expands {{ … }} placeholders in strings drawn from one
// buildfile.
type Compiler struct {
	Vars          VariableLookup
	Secrets       SecretResolver
	WorkspaceRoot string
}

// Compile expands every {{ … }} placeholder in content. buildfilePath is
// the absolute path of the buildfile content was read from, used to anchor
// variable/secret lookups and glob patterns. runtime supplies the
// well-known runtime replacements (EMAKE_WORKING_DIR, in_files, …); pass
// nil if none apply yet (e.g. at early graph-build time).
func (c *Compiler) Compile(content, buildfilePath string, runtime map[string]string) (string, error) {
	return c.compile(content, buildfilePath, runtime, 0)
}

func (c *Compiler) compile(content, buildfilePath string, runtime map[string]string, depth int) (string, error) {
	if depth > MaxDepth {
		return "", errors.Errorf("template recursion exceeded depth %d", MaxDepth)
	}

	var firstErr error
	result := placeholderRe.ReplaceAllStringFunc(content, func(match string) string {
		if firstErr != nil {
			return match
		}
		inner := placeholderRe.FindStringSubmatch(match)[1]
		expanded, err := c.compileExpr(strings.TrimSpace(inner), buildfilePath, runtime, depth)
		if err != nil {
			firstErr = err
			return match
		}
		return expanded
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// compileExpr resolves one {{ expr }} placeholder's body through the four
// phases named in the template compiler design: inner ${} user-variable
// substitution, whole-expression bare-variable lookup, runtime replacement,
// then function application — each phase's result feeding the next.
func (c *Compiler) compileExpr(expr, buildfilePath string, runtime map[string]string, depth int) (string, error) {
	element := expr

	// Phase 1: inner ${name} user-variable substitutions.
	var innerErr error
	element = runtimeVarRe.ReplaceAllStringFunc(element, func(m string) string {
		if innerErr != nil {
			return m
		}
		name := strings.TrimSpace(runtimeVarRe.FindStringSubmatch(m)[1])
		if v, ok, err := c.Vars.LookupVariable(buildfilePath, name); err != nil {
			innerErr = err
			return m
		} else if ok {
			return v
		}
		if _, ok := runtime[name]; ok {
			// Deferred to phase 3; leave the token as-is for now.
			return m
		}
		innerErr = &errs.VariableNotFound{Name: name}
		return m
	})
	if innerErr != nil {
		return "", innerErr
	}

	// Phase 2: the whole expression re-checked as a bare user variable.
	found := false
	if v, ok, err := c.Vars.LookupVariable(buildfilePath, strings.TrimSpace(element)); err != nil {
		return "", err
	} else if ok {
		element = v
		found = true
	}

	// Phase 3: runtime replacements, both ${name} and bare-name forms.
	if len(runtime) > 0 {
		element = runtimeVarRe.ReplaceAllStringFunc(element, func(m string) string {
			name := strings.TrimSpace(runtimeVarRe.FindStringSubmatch(m)[1])
			if v, ok := runtime[name]; ok {
				return v
			}
			return m
		})
		if v, ok := runtime[element]; ok {
			element = v
			found = true
		}
	}

	// Phase 4: function application. A function result wins over any
	// partial substitution performed above.
	if result, matched, err := c.callFunction(element, buildfilePath, runtime, depth); err != nil {
		return "", err
	} else if matched {
		return result, nil
	}

	// Nothing above resolved or substituted anything: the placeholder names
	// neither a user variable nor a runtime replacement.
	if !found && element == expr {
		return "", &errs.VariableNotFound{Name: expr}
	}

	return element, nil
}

func (c *Compiler) callFunction(expr, buildfilePath string, runtime map[string]string, depth int) (string, bool, error) {
	name, arg, ok := parseCall(expr)
	if !ok {
		return "", false, nil
	}

	switch name {
	case "glob":
		result, err := c.callGlob(arg)
		return result, true, err
	case "get_secret":
		// get_secret's own argument may itself contain placeholders;
		// compile it first, depth-capped.
		compiledArg, err := c.compile(arg, buildfilePath, runtime, depth+1)
		if err != nil {
			return "", true, err
		}
		if c.Secrets == nil {
			return "", true, &errs.SecretError{Name: compiledArg, Reason: "no secret resolver configured"}
		}
		v, err := c.Secrets.ResolveSecret(buildfilePath, compiledArg)
		return v, true, err
	default:
		return "", false, nil
	}
}

// parseCall recognizes "name(arg)" with a single, possibly quoted argument,
// tokenized with shlex the same way the teacher already depends on it for
// shell-style argument splitting.
func parseCall(expr string) (name, arg string, ok bool) {
	i := strings.Index(expr, "(")
	if i < 0 || !strings.HasSuffix(expr, ")") {
		return "", "", false
	}
	name = strings.TrimSpace(expr[:i])
	if name != "glob" && name != "get_secret" {
		return "", "", false
	}
	inner := expr[i+1 : len(expr)-1]
	tokens, err := shlex.Split(inner)
	if err != nil || len(tokens) == 0 {
		// Fall back to a bare strip of surrounding quotes, matching the
		// source's lenient extract_function_args behavior.
		trimmed := strings.Trim(strings.TrimSpace(inner), `"'`)
		return name, trimmed, true
	}
	return name, tokens[0], true
}

func (c *Compiler) callGlob(pattern string) (string, error) {
	fullPattern := strings.TrimPrefix(pattern, "//")
	if c.WorkspaceRoot != "" && !strings.HasPrefix(fullPattern, c.WorkspaceRoot) {
		fullPattern = c.WorkspaceRoot + "/" + fullPattern
	}
	matches, err := doublestar.FilepathGlob(fullPattern)
	if err != nil {
		return "", errors.Wrapf(err, "glob(%q)", pattern)
	}
	if matches == nil {
		matches = []string{}
	}
	return fmt.Sprintf("[%s]", strings.Join(matches, ", ")), nil
}
