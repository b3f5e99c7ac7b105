package rules

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/skirmish/internal/model"
)

//go:embed schema.cue
var schemaCUE string

// Load reads a CUE rule file and returns the rule set it declares.
//
// A rule file declares a single "rules" struct:
//
//	rules: {
//		kind:       "clash"
//		threshold:  3
//		max_rounds: 9
//	}
//
// Omitted bounds take the classic defaults.
func Load(path string) (model.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.RuleSet{}, fmt.Errorf("load rules: %w", err)
	}
	return Parse(data, path)
}

// Parse validates CUE source against the embedded schema.
func Parse(data []byte, filename string) (model.RuleSet, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return model.RuleSet{}, fmt.Errorf("rules schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return model.RuleSet{}, fmt.Errorf("parse rules %s: %w", filename, err)
	}

	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return model.RuleSet{}, fmt.Errorf("validate rules %s: %w", filename, err)
	}

	var (
		set model.RuleSet
		err error
	)
	if set.Kind, err = lookupString(unified, "rules.kind"); err != nil {
		return model.RuleSet{}, err
	}
	if set.Threshold, err = lookupInt(unified, "rules.threshold"); err != nil {
		return model.RuleSet{}, err
	}
	if set.MaxRounds, err = lookupInt(unified, "rules.max_rounds"); err != nil {
		return model.RuleSet{}, err
	}

	if _, err := New(set); err != nil {
		return model.RuleSet{}, fmt.Errorf("rules %s: %w", filename, err)
	}
	return set, nil
}

func lookupString(v cue.Value, path string) (string, error) {
	field, _ := v.LookupPath(cue.ParsePath(path)).Default()
	s, err := field.String()
	if err != nil {
		return "", fmt.Errorf("rules field %s: %w", path, err)
	}
	return s, nil
}

func lookupInt(v cue.Value, path string) (int, error) {
	field, _ := v.LookupPath(cue.ParsePath(path)).Default()
	n, err := field.Int64()
	if err != nil {
		return 0, fmt.Errorf("rules field %s: %w", path, err)
	}
	return int(n), nil
}
