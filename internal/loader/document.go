// Package loader reads buildfiles (named Emakefile) into a typed tree and
// caches the result per absolute path so a run never parses the same file
// twice, per the loader contract.
package loader

// Document is the typed form of one parsed buildfile: its targets,
// user-defined variables, and secret records.
type Document struct {
	// Targets maps a bare target name (as declared in this buildfile, not
	// yet normalized to an absolute id) to its definition.
	Targets map[string]Target `yaml:"targets,omitempty" json:"targets,omitempty" jsonschema:"required"`

	// Variables maps a user-defined variable name to its string value, for
	// {{ bare_name }} and {{ ${name} }} template lookups.
	Variables map[string]string `yaml:"variables,omitempty" json:"variables,omitempty"`

	// Secrets maps a secret name to its record, consumed by get_secret(...)
	// and by input-file credential lookups.
	Secrets map[string]SecretRecord `yaml:"secrets,omitempty" json:"secrets,omitempty"`

	// Path is the absolute on-disk path this document was parsed from. Not
	// part of the YAML shape; set by the loader after a successful parse.
	Path string `yaml:"-" json:"-"`
}

// Target carries an ordered list of steps, an optional ordered list of
// dependency references, and an optional parallelism flag.
type Target struct {
	// Deps lists dependency references in declaration order. Each is
	// resolved through pathmodel.Normalize before use.
	Deps []string `yaml:"deps,omitempty" json:"deps,omitempty"`

	// Parallel is the target's declared parallelism flag. Nil means "true"
	// (the default). The graph builder chains a target's steps in
	// declaration order whatever this flag says; it is only copied onto
	// each step node as graph.Node.Parallel.
	Parallel *bool `yaml:"parallel,omitempty" json:"parallel,omitempty"`

	// Steps is the ordered list of actions this target performs when built.
	// A target with no steps still gets a synthetic target-entry node.
	Steps []Step `yaml:"steps,omitempty" json:"steps,omitempty"`
}

// IsParallel reports the target's declared parallelism flag. Absent a
// declared value, the default is true.
func (t Target) IsParallel() bool {
	return t.Parallel == nil || *t.Parallel
}

// InFileRef is either a bare path string or a record naming a credential
// secret used to authenticate fetching it. Its custom (Un)MarshalYAML lives
// in infile.go.
type InFileRef struct {
	File        string `yaml:"file,omitempty" json:"file,omitempty"`
	Credentials string `yaml:"credentials,omitempty" json:"credentials,omitempty"`
}

// SecretRecord is the declarative form of a secret: a plugin type tag plus
// type-specific fields. Field set is a closed union over the two standard
// plugins (plain, keyring); unknown types are rejected at resolution time
// by internal/secret, not at parse time, since the type-specific key set is
// plugin-defined.
type SecretRecord struct {
	Type string `yaml:"type" json:"type" jsonschema:"required"`

	// Secret is the plain plugin's base64-encoded literal.
	Secret string `yaml:"secret,omitempty" json:"secret,omitempty"`

	// Service and Name address a keyring plugin entry.
	Service string `yaml:"service,omitempty" json:"service,omitempty"`
	Name    string `yaml:"name,omitempty" json:"name,omitempty"`
}
