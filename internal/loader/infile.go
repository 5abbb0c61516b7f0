package loader

import (
	"context"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
	"github.com/pkg/errors"
)

// UnmarshalYAML lets an input file reference be written either as a bare
// path string or as a {file, credentials} record, following the teacher's
// own technique for node-type-dispatched unmarshaling (see
// PackageDependencyList.UnmarshalYAML for the scalar-or-sequence variant of
// the same idea).
func (r *InFileRef) UnmarshalYAML(ctx context.Context, node ast.Node) error {
	if node.Type() == ast.StringType {
		var s string
		if err := yaml.NodeToValue(node, &s); err != nil {
			return errors.Wrap(err, "unmarshal input file reference string")
		}
		r.File = s
		r.Credentials = ""
		return nil
	}

	type internal InFileRef
	var i internal
	if err := yaml.NodeToValue(node, &i); err != nil {
		return errors.Wrap(err, "unmarshal input file reference record")
	}
	*r = InFileRef(i)
	return nil
}
