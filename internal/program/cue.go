package program

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/plcsim/internal/iotable"
	"github.com/roach88/plcsim/internal/ladder"
)

//go:embed schema.cue
var schemaCUE string

// CompileError reports a problem in a CUE program file.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load compiles a program from a .cue file or from a directory holding a
// single CUE package. The program must be declared under the top-level
// "program" field:
//
//	program: {
//		name: "Tank"
//		points: {
//			DI_0: {kind: "digital-input", name: "Emergency Stop", critical: true}
//			DO_0: {kind: "digital-output", name: "Pump Control"}
//		}
//		rungs: [{name: "Run", when: ["!DI_0"], output: "DO_0"}]
//	}
func Load(path string) (*Program, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}
	if !info.IsDir() {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load program: %w", err)
		}
		return CompileString(filepath.Base(path), string(src))
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, fmt.Errorf("load program: no CUE instances in %s", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("load program: %w", formatCUEError(inst.Err))
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileRoot(ctx, v)
}

// CompileString compiles CUE source text. filename is used in error
// positions only.
func CompileString(filename, src string) (*Program, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileRoot(ctx, v)
}

func compileRoot(ctx *cue.Context, root cue.Value) (*Program, error) {
	v := root.LookupPath(cue.ParsePath("program"))
	if !v.Exists() {
		return nil, &CompileError{Field: "program", Message: "top-level program field is required", Pos: root.Pos()}
	}

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("program schema: %w", err)
	}
	v = v.Unify(schema.LookupPath(cue.ParsePath("#Program")))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileValue(v)
}

// CompileValue converts a program value that already satisfies #Program.
func CompileValue(v cue.Value) (*Program, error) {
	p := &Program{}

	name, err := v.LookupPath(cue.ParsePath("name")).String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	p.Name = clean(name)
	if p.Name == "" {
		return nil, &CompileError{Field: "name", Message: "program name must not be empty", Pos: v.Pos()}
	}
	if d := v.LookupPath(cue.ParsePath("description")); d.Exists() {
		s, err := d.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		p.Description = clean(s)
	}

	p.Points, err = parsePoints(v.LookupPath(cue.ParsePath("points")))
	if err != nil {
		return nil, err
	}
	if len(p.Points) == 0 {
		return nil, &CompileError{Field: "points", Message: "at least one point is required", Pos: v.Pos()}
	}

	p.Rungs, err = parseRungs(v.LookupPath(cue.ParsePath("rungs")))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// parsePoints keeps CUE declaration order, which becomes table order.
func parsePoints(v cue.Value) ([]iotable.Def, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var defs []iotable.Def
	seen := map[string]bool{}
	for iter.Next() {
		tag := norm.NFC.String(iter.Selector().Unquoted())
		pv := iter.Value()
		field := "points." + tag

		if strings.TrimSpace(tag) != tag || tag == "" {
			return nil, &CompileError{Field: field, Message: "tag must not be blank or padded", Pos: pv.Pos()}
		}
		if seen[tag] {
			return nil, &CompileError{Field: field, Message: "duplicate tag after Unicode normalisation", Pos: pv.Pos()}
		}
		seen[tag] = true

		kindStr, err := pv.LookupPath(cue.ParsePath("kind")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		kind, err := iotable.ParseKind(kindStr)
		if err != nil {
			return nil, &CompileError{Field: field + ".kind", Message: err.Error(), Pos: pv.Pos()}
		}

		d := iotable.Def{Tag: tag, Kind: kind}
		d.Name = optString(pv, "name")
		d.Description = optString(pv, "description")
		d.Unit = optString(pv, "unit")
		if c := pv.LookupPath(cue.ParsePath("critical")); c.Exists() {
			if d.Critical, err = c.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}

		if val := pv.LookupPath(cue.ParsePath("value")); val.Exists() {
			if kind.IsDigital() {
				b, err := val.Bool()
				if err != nil {
					return nil, &CompileError{Field: field + ".value", Message: "digital points take a bool value", Pos: val.Pos()}
				}
				d.Digital = b
			} else {
				f, err := val.Float64()
				if err != nil {
					return nil, &CompileError{Field: field + ".value", Message: "analog points take a numeric value", Pos: val.Pos()}
				}
				d.Analog = f
			}
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func parseRungs(v cue.Value) ([]ladder.Rung, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rungs []ladder.Rung
	for i := 0; iter.Next(); i++ {
		rv := iter.Value()
		field := fmt.Sprintf("rungs[%d]", i)

		name, err := rv.LookupPath(cue.ParsePath("name")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		output, err := rv.LookupPath(cue.ParsePath("output")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		var conds []string
		condIter, err := rv.LookupPath(cue.ParsePath("when")).List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for condIter.Next() {
			s, err := condIter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			conds = append(conds, norm.NFC.String(s))
		}

		r, err := ladder.NewRung(clean(name), clean(output), conds...)
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: rv.Pos()}
		}
		rungs = append(rungs, r)
	}
	return rungs, nil
}

func optString(v cue.Value, field string) string {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return ""
	}
	s, err := f.String()
	if err != nil {
		return ""
	}
	return clean(s)
}

// clean NFC-normalises text so "°C" or an accented tag typed on different
// keyboards compares equal. Tags and conditions are normalised too.
func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
