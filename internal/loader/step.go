package loader

import "github.com/pkg/errors"

// Step is one action plus optional metadata within a target. Exactly one of
// the eight action fields must be non-nil; this is the Go rendering of the
// source's closed action enum as a tagged struct, validated at unmarshal
// time rather than relying on a virtual dispatch call.
type Step struct {
	Shell    *ShellAction    `yaml:"shell,omitempty" json:"shell,omitempty"`
	Copy     *CopyAction     `yaml:"copy,omitempty" json:"copy,omitempty"`
	Move     *MoveAction     `yaml:"move,omitempty" json:"move,omitempty"`
	Remove   *RemoveAction   `yaml:"remove,omitempty" json:"remove,omitempty"`
	Extract  *ExtractAction  `yaml:"extract,omitempty" json:"extract,omitempty"`
	Archive  *ArchiveAction  `yaml:"archive,omitempty" json:"archive,omitempty"`
	GitClone *GitCloneAction `yaml:"git_clone,omitempty" json:"git_clone,omitempty"`
	Yaml     *YamlEditAction `yaml:"yaml,omitempty" json:"yaml,omitempty"`

	InFiles     []InFileRef `yaml:"in_files,omitempty" json:"in_files,omitempty"`
	OutFiles    []string    `yaml:"out_files,omitempty" json:"out_files,omitempty"`
	Checksum    string      `yaml:"checksum,omitempty" json:"checksum,omitempty"`
	Clean       string      `yaml:"clean,omitempty" json:"clean,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
}

// ShellAction runs a command body (after template compilation) via sh -c /
// cmd /C.
type ShellAction struct {
	Cmd string `yaml:"cmd" json:"cmd" jsonschema:"required"`
}

// CopyAction copies each entry of From to the matching entry of To, or all
// of From into a single directory To[0] when len(To) == 1.
type CopyAction struct {
	From []string `yaml:"from" json:"from" jsonschema:"required"`
	To   []string `yaml:"to" json:"to" jsonschema:"required"`
}

// MoveAction moves every entry of From into directory To, implemented as
// copy-then-remove-source since a cross-filesystem rename is unreliable.
type MoveAction struct {
	From []string `yaml:"from" json:"from" jsonschema:"required"`
	To   string   `yaml:"to" json:"to" jsonschema:"required"`
}

// RemoveAction deletes every path in Paths (file or directory, recursively).
type RemoveAction struct {
	Paths []string `yaml:"paths" json:"paths" jsonschema:"required"`
}

// ExtractAction extracts an archive (zip, tar.gz, or tar.xz, inferred from
// From's extension) at From into directory To.
type ExtractAction struct {
	From     string   `yaml:"from" json:"from" jsonschema:"required"`
	To       string   `yaml:"to" json:"to" jsonschema:"required"`
	OutFiles []string `yaml:"out_files,omitempty" json:"out_files,omitempty"`
}

// ArchiveAction writes the files under From into an archive at To, in the
// format implied by To's extension.
type ArchiveAction struct {
	From []string `yaml:"from" json:"from" jsonschema:"required"`
	To   string   `yaml:"to" json:"to" jsonschema:"required"`
}

// GitCloneAction clones URL at Commit (sha, tag, or branch) into Destination.
// Without a Commit the clone is shallow (depth 1).
// Username/Password authenticate an https clone; SSHKey authenticates an
// ssh clone; the two are mutually exclusive. Each of Username, Password,
// and SSHKey names a secret, resolved through internal/secret.
type GitCloneAction struct {
	URL         string `yaml:"url" json:"url" jsonschema:"required"`
	Destination string `yaml:"destination" json:"destination" jsonschema:"required"`
	Commit      string `yaml:"commit,omitempty" json:"commit,omitempty"`
	Username    string `yaml:"username,omitempty" json:"username,omitempty"`
	Password    string `yaml:"password,omitempty" json:"password,omitempty"`
	SSHKey      string `yaml:"ssh_key,omitempty" json:"ssh_key,omitempty"`
}

// YamlEditAction deep-merges Set into the YAML document at From, writing
// the result to To (From and To may be the same path to edit in place). A
// null value anywhere in Set deletes the corresponding key from the base
// document; string scalar values in Set are template-compiled before merge.
type YamlEditAction struct {
	From string                 `yaml:"from,omitempty" json:"from,omitempty"`
	To   string                 `yaml:"to,omitempty" json:"to,omitempty"`
	Set  map[string]interface{} `yaml:"set" json:"set" jsonschema:"required"`
}

// actionFields returns the step's eight action fields as a slice of
// "present" booleans, in declared variant order, for the exactly-one check.
func (s Step) actionFields() []bool {
	return []bool{
		s.Shell != nil,
		s.Copy != nil,
		s.Move != nil,
		s.Remove != nil,
		s.Extract != nil,
		s.Archive != nil,
		s.GitClone != nil,
		s.Yaml != nil,
	}
}

// Validate enforces the "exactly one action variant" invariant. It is
// called explicitly after unmarshaling (rather than from UnmarshalYAML
// itself), once the whole Document has decoded; the loader reports the
// first invalid step it meets and stops there.
func (s Step) Validate() error {
	n := 0
	for _, present := range s.actionFields() {
		if present {
			n++
		}
	}
	switch n {
	case 0:
		return errors.New("step has no action variant; exactly one of shell, copy, move, remove, extract, archive, git_clone, yaml is required")
	case 1:
		return nil
	default:
		return errors.New("step has more than one action variant; exactly one of shell, copy, move, remove, extract, archive, git_clone, yaml is required")
	}
}

// Kind returns the name of the single present action variant. Validate
// must have already succeeded, or the zero value "" is returned.
func (s Step) Kind() string {
	switch {
	case s.Shell != nil:
		return "shell"
	case s.Copy != nil:
		return "copy"
	case s.Move != nil:
		return "move"
	case s.Remove != nil:
		return "remove"
	case s.Extract != nil:
		return "extract"
	case s.Archive != nil:
		return "archive"
	case s.GitClone != nil:
		return "git_clone"
	case s.Yaml != nil:
		return "yaml"
	default:
		return ""
	}
}
