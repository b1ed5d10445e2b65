package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chazu/routegrid/pkg/geom"
	"github.com/chazu/routegrid/pkg/kernel"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms scene source code before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: mesh-file -> mesh_file
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpSolid wraps a kernel.Solid so it can be passed between builtins.
type sexpSolid struct {
	solid kernel.Solid
	desc  string
}

func (s *sexpSolid) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(solid %s)", s.desc)
}
func (s *sexpSolid) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a geom.Point3.
type sexpVec3 struct {
	vec geom.Point3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec[0], v.vec[1], v.vec[2])
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value: treat as flag with nil.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toPositive extracts a strictly positive number.
func toPositive(s zygo.Sexp) (float64, error) {
	f, err := toFloat64(s)
	if err != nil {
		return 0, err
	}
	if !(f > 0) {
		return 0, fmt.Errorf("must be positive, got %g", f)
	}
	return f, nil
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts a Point3 from a sexpVec3.
func toVec3(s zygo.Sexp) (geom.Point3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return geom.Point3{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toSolid extracts a kernel.Solid from a sexpSolid.
func toSolid(s zygo.Sexp) (kernel.Solid, error) {
	if v, ok := s.(*sexpSolid); ok {
		return v.solid, nil
	}
	return nil, fmt.Errorf("expected solid, got %T (%s)", s, s.SexpString(nil))
}

// toSolids extracts every argument as a solid.
func toSolids(fn string, args []zygo.Sexp) ([]kernel.Solid, error) {
	out := make([]kernel.Solid, len(args))
	for i, a := range args {
		s, err := toSolid(a)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", fn, i+1, err)
		}
		out[i] = s
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// builder holds the state that builtins share during one evaluation.
type builder struct {
	kernel kernel.Kernel
	dir    string
	load   MeshLoader
	scene  *Scene
}

// guard runs a kernel constructor, turning library panics into errors.
func guard(fn string, build func() kernel.Solid) (s kernel.Solid, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %v: %w", fn, r, kernel.ErrGeometryOperationFailed)
		}
	}()
	return build(), nil
}

// at applies an optional :at translation.
func (b *builder) at(fn string, pa kwArgs, s kernel.Solid) (kernel.Solid, error) {
	v, ok := pa.kw["at"]
	if !ok {
		return s, nil
	}
	p, err := toVec3(v)
	if err != nil {
		return nil, fmt.Errorf("%s: at: %w", fn, err)
	}
	return guard(fn, func() kernel.Solid { return b.kernel.Translate(s, p[0], p[1], p[2]) })
}

func solidSexp(s kernel.Solid, desc string) *sexpSolid {
	return &sexpSolid{solid: s, desc: desc}
}

// register installs all scene builtins into a zygomys environment.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func (b *builder) register(env *zygo.Zlisp) {

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var v geom.Point3
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %c: %w", "xyz"[i], err)
			}
			v[i] = f
		}
		return &sexpVec3{vec: v}, nil
	})

	// -----------------------------------------------------------------------
	// (box :size (vec3 100 50 25) :at (vec3 0 0 10))
	// The box's minimum corner sits at the origin before :at is applied.
	// -----------------------------------------------------------------------
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		v, ok := pa.kw["size"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("box requires :size")
		}
		size, err := toVec3(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box: size: %w", err)
		}
		for i := 0; i < 3; i++ {
			if !(size[i] > 0) {
				return zygo.SexpNull, fmt.Errorf("box: size: %c must be positive, got %g", "xyz"[i], size[i])
			}
		}
		s, err := guard("box", func() kernel.Solid { return b.kernel.Box(size[0], size[1], size[2]) })
		if err != nil {
			return zygo.SexpNull, err
		}
		if s, err = b.at("box", pa, s); err != nil {
			return zygo.SexpNull, err
		}
		return solidSexp(s, fmt.Sprintf("box %gx%gx%g", size[0], size[1], size[2])), nil
	})

	// -----------------------------------------------------------------------
	// (cylinder :height 20 :radius 3 :segments 32 :at (vec3 ..))
	// Centered on the origin, axis along Z.
	// -----------------------------------------------------------------------
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		hv, ok := pa.kw["height"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("cylinder requires :height")
		}
		rv, ok := pa.kw["radius"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("cylinder requires :radius")
		}
		h, err := toPositive(hv)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: height: %w", err)
		}
		r, err := toPositive(rv)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: radius: %w", err)
		}
		segments := 32
		if v, ok := pa.kw["segments"]; ok {
			f, err := toPositive(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("cylinder: segments: %w", err)
			}
			segments = int(f)
		}
		s, err := guard("cylinder", func() kernel.Solid { return b.kernel.Cylinder(h, r, segments) })
		if err != nil {
			return zygo.SexpNull, err
		}
		if s, err = b.at("cylinder", pa, s); err != nil {
			return zygo.SexpNull, err
		}
		return solidSexp(s, fmt.Sprintf("cylinder h=%g r=%g", h, r)), nil
	})

	// -----------------------------------------------------------------------
	// (sphere :radius 5 :at (vec3 ..))
	// -----------------------------------------------------------------------
	env.AddFunction("sphere", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		rv, ok := pa.kw["radius"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("sphere requires :radius")
		}
		r, err := toPositive(rv)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sphere: radius: %w", err)
		}
		s, err := guard("sphere", func() kernel.Solid { return b.kernel.Sphere(r) })
		if err != nil {
			return zygo.SexpNull, err
		}
		if s, err = b.at("sphere", pa, s); err != nil {
			return zygo.SexpNull, err
		}
		return solidSexp(s, fmt.Sprintf("sphere r=%g", r)), nil
	})

	// -----------------------------------------------------------------------
	// (translate s (vec3 10 0 0)) and (rotate s (vec3 0 0 90))
	// Rotation angles are degrees about X, Y, Z.
	// -----------------------------------------------------------------------
	transform := func(op func(kernel.Solid, geom.Point3) kernel.Solid) zygo.ZlispUserFunction {
		return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) != 2 {
				return zygo.SexpNull, fmt.Errorf("%s requires a solid and a vec3, got %d arguments", name, len(args))
			}
			s, err := toSolid(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
			}
			v, err := toVec3(args[1])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
			}
			out, err := guard(name, func() kernel.Solid { return op(s, v) })
			if err != nil {
				return zygo.SexpNull, err
			}
			return solidSexp(out, fmt.Sprintf("%s %v", name, v)), nil
		}
	}
	env.AddFunction("translate", transform(func(s kernel.Solid, v geom.Point3) kernel.Solid {
		return b.kernel.Translate(s, v[0], v[1], v[2])
	}))
	env.AddFunction("rotate", transform(func(s kernel.Solid, v geom.Point3) kernel.Solid {
		return b.kernel.Rotate(s, v[0], v[1], v[2])
	}))

	// -----------------------------------------------------------------------
	// (union a b ...), (difference a b ...), (intersection a b ...)
	// difference subtracts every later argument from the first.
	// -----------------------------------------------------------------------
	env.AddFunction("union", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		solids, err := toSolids("union", args)
		if err != nil {
			return zygo.SexpNull, err
		}
		s, err := kernel.Fuse(b.kernel, solids...)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("union: %w", err)
		}
		return solidSexp(s, fmt.Sprintf("union of %d", len(solids))), nil
	})
	fold := func(op func(a, c kernel.Solid) kernel.Solid) zygo.ZlispUserFunction {
		return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) < 2 {
				return zygo.SexpNull, fmt.Errorf("%s requires at least 2 solids, got %d", name, len(args))
			}
			solids, err := toSolids(name, args)
			if err != nil {
				return zygo.SexpNull, err
			}
			acc := solids[0]
			for _, s := range solids[1:] {
				if acc, err = guard(name, func() kernel.Solid { return op(acc, s) }); err != nil {
					return zygo.SexpNull, err
				}
			}
			return solidSexp(acc, fmt.Sprintf("%s of %d", name, len(solids))), nil
		}
	}
	env.AddFunction("difference", fold(b.kernel.Difference))
	env.AddFunction("intersection", fold(b.kernel.Intersection))

	// -----------------------------------------------------------------------
	// (mesh "parts/bracket.stl")
	// The path must stay inside the scene's directory.
	// -----------------------------------------------------------------------
	env.AddFunction("mesh", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("mesh requires a file path")
		}
		rel, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("mesh: path: %w", err)
		}
		if !filepath.IsLocal(rel) {
			return zygo.SexpNull, fmt.Errorf("mesh: path %q escapes the scene directory", rel)
		}
		m, err := b.load(filepath.Join(b.dir, rel))
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("mesh: %w", err)
		}
		s, err := b.kernel.FromMesh(m)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("mesh: %s: %w", rel, err)
		}
		return solidSexp(s, fmt.Sprintf("mesh %q", rel)), nil
	})

	// -----------------------------------------------------------------------
	// (part "name" solid)
	// -----------------------------------------------------------------------
	env.AddFunction("part", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("part requires a name and a solid")
		}
		partName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("part: name: %w", err)
		}
		if strings.TrimSpace(partName) == "" {
			return zygo.SexpNull, fmt.Errorf("part: name must not be empty")
		}
		if _, dup := b.scene.Lookup(partName); dup {
			return zygo.SexpNull, fmt.Errorf("part: %q defined twice", partName)
		}
		s, err := toSolid(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("part %q: %w", partName, err)
		}
		b.scene.Parts = append(b.scene.Parts, Part{Name: partName, Solid: s})
		return args[1], nil
	})
}
