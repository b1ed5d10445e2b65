// Package engine evaluates scene scripts: a sandboxed zygomys Lisp in which
// builtins construct solids through a geometry kernel and name them as
// parts. A scene is one way to supply the solids a routing grid is built
// around; model files are the other.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chazu/routegrid/pkg/kernel"
	"github.com/chazu/routegrid/pkg/models"
	zygo "github.com/glycerine/zygomys/zygo"
)

// SceneExt is the file extension of scene scripts.
const SceneExt = ".lisp"

// IsScene reports whether path names a scene script.
func IsScene(path string) bool {
	return strings.EqualFold(filepath.Ext(path), SceneExt)
}

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Part is a named solid produced by a scene.
type Part struct {
	Name  string
	Solid kernel.Solid
}

// Scene is the result of evaluating a script: its parts in definition order.
type Scene struct {
	Parts []Part
}

// Lookup returns the solid of the named part.
func (s *Scene) Lookup(name string) (kernel.Solid, bool) {
	for _, p := range s.Parts {
		if p.Name == name {
			return p.Solid, true
		}
	}
	return nil, false
}

// MeshLoader reads a model file into a mesh.
type MeshLoader func(path string) (*kernel.Mesh, error)

// Engine wraps the zygomys interpreter.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	gens    generation
	timeout time.Duration

	kernel  kernel.Kernel
	baseDir string
	load    MeshLoader
}

// Option configures an Engine.
type Option func(*Engine)

// WithBaseDir sets the directory that (mesh "file") paths resolve against.
func WithBaseDir(dir string) Option {
	return func(e *Engine) { e.baseDir = dir }
}

// WithMeshLoader replaces models.Load for (mesh "file").
func WithMeshLoader(fn MeshLoader) Option {
	return func(e *Engine) { e.load = fn }
}

// WithTimeout bounds each evaluation. Non-positive values keep
// DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEngine creates an Engine that builds solids with k.
func NewEngine(k kernel.Kernel, opts ...Option) *Engine {
	e := &Engine{kernel: k, baseDir: ".", load: models.Load, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateFile reads and evaluates a scene file. Mesh paths inside it
// resolve against the file's directory.
func (e *Engine) EvaluateFile(path string) (*Scene, []EvalError, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: %w", err)
	}
	return e.run(string(src), filepath.Dir(path))
}

// Evaluate takes Lisp source code and produces a Scene.
//
// Return semantics:
//   - On success: returns scene + nil errors + nil error
//   - On parse/eval failure: returns nil scene + eval errors + nil error
//   - On fatal failure (ErrTimeout, ErrSuperseded, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Scene, []EvalError, error) {
	return e.run(source, e.baseDir)
}

func (e *Engine) run(source, dir string) (*Scene, []EvalError, error) {
	gen := e.gens.next()
	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		sc, evalErrs, err := e.evaluate(source, dir)
		ch <- evalResult{scene: sc, errors: evalErrs, err: err}
	}()

	return await(ch, gen, &e.gens, e.timeout)
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source, dir string) (*Scene, []EvalError, error) {
	sc := &Scene{}
	if strings.TrimSpace(source) == "" {
		return sc, nil, nil
	}

	// Sandbox mode keeps user code away from the filesystem; (mesh ...)
	// reads files on the Go side under dir only.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	b := &builder{kernel: e.kernel, dir: dir, load: e.load, scene: sc}
	b.register(env)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}

	last, err := env.Run()
	if err != nil {
		return nil, parseZygomysError(err), nil
	}

	// A script that names nothing contributes its final solid.
	if len(sc.Parts) == 0 {
		if s, ok := last.(*sexpSolid); ok {
			sc.Parts = append(sc.Parts, Part{Name: "scene", Solid: s.solid})
		}
	}
	return sc, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
