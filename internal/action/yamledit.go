package action

import (
	"os"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"github.com/dalecbuild/emake/internal/loader"
)

// runYamlEdit deep-merges a.Set into the document at a.From (or an empty
// document if a.From doesn't exist yet), writing the result to a.To. A nil
// value anywhere in a.Set deletes the corresponding key from the base
// document, following actions/yaml.rs's merge_yaml semantics.
func runYamlEdit(ctx Context, a *loader.YamlEditAction) error {
	from := a.From
	to := a.To
	if to == "" {
		to = from
	}
	if from == "" {
		from = to
	}

	base := map[string]interface{}{}
	if dt, err := os.ReadFile(from); err == nil {
		if err := yaml.Unmarshal(dt, &base); err != nil {
			return errors.Wrapf(err, "parse existing yaml %s", from)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "read %s", from)
	}

	set := a.Set
	if ctx.Template != nil {
		compiled, err := compileYamlValues(ctx, a.Set)
		if err != nil {
			return errors.Wrap(err, "compile yaml patch values")
		}
		set = compiled
	}

	mergeYaml(base, set)

	out, err := yaml.Marshal(base)
	if err != nil {
		return errors.Wrap(err, "marshal merged yaml")
	}
	if err := os.WriteFile(to, out, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", to)
	}
	if ctx.Log != nil {
		ctx.Log.Write("wrote " + to)
	}
	return nil
}

// compileYamlValues walks a patch map and runs every string scalar through
// ctx.Template, so a yaml step's set values can reference the same {{ }}
// placeholders as any other action field. Map and slice structure is
// preserved; non-string leaves pass through unchanged.
func compileYamlValues(ctx Context, in map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		compiled, err := compileYamlValue(ctx, v)
		if err != nil {
			return nil, err
		}
		out[k] = compiled
	}
	return out, nil
}

func compileYamlValue(ctx Context, v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return ctx.Template.CompileString(t)
	case map[string]interface{}:
		return compileYamlValues(ctx, t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			compiled, err := compileYamlValue(ctx, e)
			if err != nil {
				return nil, err
			}
			out[i] = compiled
		}
		return out, nil
	default:
		return v, nil
	}
}

// mergeYaml deep-merges update into base in place. A nil value in update
// deletes the corresponding key from base; nested maps merge recursively;
// any other value type replaces the base entry outright.
func mergeYaml(base map[string]interface{}, update map[string]interface{}) {
	for k, v := range update {
		if v == nil {
			delete(base, k)
			continue
		}

		updateMap, updateIsMap := v.(map[string]interface{})
		baseMap, baseIsMap := base[k].(map[string]interface{})
		if updateIsMap && baseIsMap {
			mergeYaml(baseMap, updateMap)
			continue
		}
		base[k] = v
	}
}
