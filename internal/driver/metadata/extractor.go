package metadata

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/multierr"

	"github.com/gometr/gometr/internal/driver/ast"
	"github.com/gometr/gometr/internal/driver/parser"
)

// factoryKinds maps property-factory function names to property kinds.
// Both the snake_case factories and the legacy CamelCase class spellings
// appear in driver files; they are equivalent.
var factoryKinds = map[string]PropertyKind{
	"value_property":    KindValue,
	"select_property":   KindSelect,
	"switch_property":   KindSwitch,
	"string_property":   KindString,
	"data_property":     KindData,
	"ValueProperty":     KindValue,
	"SelectProperty":    KindSelect,
	"SwitchProperty":    KindSwitch,
	"StringProperty":    KindString,
	"DataProperty":      KindData,
	"DataBlockProperty": KindData,
}

// Warning records a property or declaration that was dropped during
// extraction. Extraction is partial-failure tolerant: a bad property drops
// only itself, never the whole driver.
type Warning struct {
	Message   string `json:"message"`
	Driver    string `json:"driver,omitempty"`
	Subsystem string `json:"subsystem,omitempty"`
	Property  string `json:"property,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// String renders the warning for logs
func (w Warning) String() string {
	ctx := w.Driver
	if w.Subsystem != "" {
		ctx += "." + w.Subsystem
	}
	if w.Property != "" {
		ctx += "." + w.Property
	}
	return fmt.Sprintf("line %d: %s: %s", w.Line, ctx, w.Message)
}

// Extraction is the result of walking one driver module
type Extraction struct {
	Drivers  []*DriverMetadata
	Warnings []Warning
}

// Driver returns the named driver from the extraction, or nil
func (e *Extraction) Driver(name string) *DriverMetadata {
	for _, d := range e.Drivers {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// ExtractSource parses driver source text and extracts metadata from it.
// Parse errors are fatal for the whole file; extraction warnings are not.
// The result is deterministic: the same source always yields the same
// metadata.
func ExtractSource(source string) (*Extraction, error) {
	module, parseErrs := parser.ParseSource(source)
	if len(parseErrs) > 0 {
		var err error
		for _, pe := range parseErrs {
			err = multierr.Append(err, pe)
		}
		return nil, fmt.Errorf("parse driver source: %w", err)
	}
	return Extract(module)
}

// Extract walks a parsed driver module and produces metadata for every
// instrument class it declares.
func Extract(module *ast.Module) (*Extraction, error) {
	ex := &extractor{
		byName:     make(map[string]*DriverMetadata),
		subsystems: make(map[string]*ast.ClassDef),
		bindings:   make(map[string][]*binding),
	}
	ex.collect(module)
	ex.resolve()

	result := &Extraction{Drivers: ex.drivers, Warnings: ex.warnings}
	for _, d := range result.Drivers {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// binding records one `self.attr = Sub.build(self, ':PREF', indices=N)`
// call inside an instrument class.
type binding struct {
	driver    *DriverMetadata
	className string
	attr      string
	prefix    string
	indices   int
	line      int
}

type extractor struct {
	drivers []*DriverMetadata
	byName  map[string]*DriverMetadata
	// current is the most recently declared instrument; module-level
	// Sources classes attach to it.
	current *DriverMetadata

	subsystems map[string]*ast.ClassDef // subsystem class name -> definition
	bindings   map[string][]*binding    // driver name -> build calls in order
	warnings   []Warning
}

// collect is the first pass: find instrument classes, their build-call
// bindings, methods and sources, and remember subsystem class definitions
// for the second pass.
func (ex *extractor) collect(module *ast.Module) {
	for _, stmt := range module.Body {
		class, ok := stmt.(*ast.ClassDef)
		if !ok {
			continue
		}
		switch {
		case class.HasBase("Instrument"):
			ex.collectInstrument(class)
		case class.HasBase("Subsystem"):
			ex.rememberSubsystem(class)
		case class.Name == "Sources" && ex.current != nil:
			ex.collectSources(class, ex.current)
		}
	}
}

func (ex *extractor) collectInstrument(class *ast.ClassDef) {
	driver := &DriverMetadata{Name: class.Name}
	ex.drivers = append(ex.drivers, driver)
	ex.byName[class.Name] = driver
	ex.current = driver

	for _, stmt := range class.Body {
		switch s := stmt.(type) {
		case *ast.FuncDef:
			ex.collectMethod(driver, s)
			for _, bodyStmt := range s.Body {
				if assign, ok := bodyStmt.(*ast.Assign); ok {
					ex.collectInstrumentAssign(driver, assign)
				}
			}
		case *ast.Assign:
			ex.collectInstrumentAssign(driver, s)
		case *ast.ClassDef:
			switch {
			case s.Name == "Sources":
				ex.collectSources(s, driver)
			case s.HasBase("Subsystem"):
				ex.rememberSubsystem(s)
			}
		}
	}
}

func (ex *extractor) collectMethod(driver *DriverMetadata, fn *ast.FuncDef) {
	if strings.HasPrefix(fn.Name, "_") {
		return
	}
	args := make([]string, 0, len(fn.Args))
	for _, a := range fn.Args {
		if a != "self" {
			args = append(args, a)
		}
	}
	driver.Methods = append(driver.Methods, MethodMetadata{
		Name:          fn.Name,
		Args:          args,
		SourceCommand: isSourceCommand(fn),
		Returns:       fn.Returns,
	})
}

// isSourceCommand reports whether the method carries the
// @Sources.source_command(...) decorator (or the bare @source_command form).
func isSourceCommand(fn *ast.FuncDef) bool {
	for _, dec := range fn.Decorators {
		call, ok := dec.(*ast.Call)
		if !ok {
			continue
		}
		name := ast.DottedName(call.Func)
		if name == "source_command" || strings.HasSuffix(name, ".source_command") {
			return true
		}
	}
	return false
}

// collectInstrumentAssign inspects one assignment in an instrument class
// (or its methods) for `Sub.build(...)` and `Sources([...])` calls.
func (ex *extractor) collectInstrumentAssign(driver *DriverMetadata, assign *ast.Assign) {
	call, ok := assign.Value.(*ast.Call)
	if !ok {
		return
	}

	if attr, ok := call.Func.(*ast.Attribute); ok && attr.Attr == "build" {
		ex.collectBuild(driver, assign, call, attr)
		return
	}

	if name, ok := call.Func.(*ast.Name); ok && name.ID == "Sources" && len(call.Args) > 0 {
		sources, err := foldStringList(call.Args[0])
		if err != nil {
			ex.warn(Warning{
				Message: fmt.Sprintf("cannot fold source list: %v", err),
				Driver:  driver.Name,
				Line:    assign.Loc.Line,
			})
			return
		}
		driver.Sources = sources
	}
}

func (ex *extractor) collectBuild(driver *DriverMetadata, assign *ast.Assign, call *ast.Call, fn *ast.Attribute) {
	className := ast.DottedName(fn.Value)
	if className == "" {
		ex.warn(Warning{
			Message: "build call on a non-name receiver",
			Driver:  driver.Name,
			Line:    assign.Loc.Line,
		})
		return
	}

	b := &binding{
		driver:    driver,
		className: className,
		attr:      assign.Target.Name,
		indices:   1,
		line:      assign.Loc.Line,
	}

	// The first positional argument is the parent (self); the command
	// prefix is the first string literal argument.
	for _, arg := range call.Args {
		if c, ok := arg.(*ast.Constant); ok && c.Kind == ast.ConstString {
			b.prefix = c.Str
			break
		}
	}

	for _, kw := range call.Keywords {
		if kw.Arg != "indices" {
			continue
		}
		n, err := foldInt(kw.Value)
		if err != nil {
			ex.warn(Warning{
				Message:   fmt.Sprintf("cannot fold indices argument: %v; treating %s as unindexed", err, className),
				Driver:    driver.Name,
				Subsystem: className,
				Line:      assign.Loc.Line,
			})
			continue
		}
		b.indices = n
	}

	ex.bindings[driver.Name] = append(ex.bindings[driver.Name], b)
}

// collectSources extracts the source identifier list from a Sources class
// body: the first assignment of a list of string constants.
func (ex *extractor) collectSources(class *ast.ClassDef, driver *DriverMetadata) {
	for _, stmt := range class.Body {
		assign, ok := stmt.(*ast.Assign)
		if !ok {
			continue
		}
		if sources, err := foldStringList(assign.Value); err == nil {
			driver.Sources = sources
			return
		}
	}
}

func (ex *extractor) rememberSubsystem(class *ast.ClassDef) {
	if _, exists := ex.subsystems[class.Name]; !exists {
		ex.subsystems[class.Name] = class
	}
}

// resolve is the second pass: materialize SubsystemMetadata for every build
// binding, in declaration order, pulling properties from the subsystem
// class bodies.
func (ex *extractor) resolve() {
	for _, driver := range ex.drivers {
		for _, b := range ex.bindings[driver.Name] {
			sub := &SubsystemMetadata{
				Name:          b.className,
				Attr:          b.attr,
				Prefix:        b.prefix,
				NeedsIndexing: b.indices > 1,
				Line:          b.line,
			}
			if sub.NeedsIndexing {
				sub.InstanceCount = b.indices
			}

			class, ok := ex.subsystems[b.className]
			if !ok {
				ex.warn(Warning{
					Message:   "subsystem class not found in driver source",
					Driver:    driver.Name,
					Subsystem: b.className,
					Line:      b.line,
				})
			} else {
				sub.Properties = ex.extractProperties(driver.Name, class)
			}

			if existing := driver.Subsystem(sub.Name); existing != nil {
				ex.warn(Warning{
					Message:   "duplicate build call for subsystem; keeping the first",
					Driver:    driver.Name,
					Subsystem: sub.Name,
					Line:      b.line,
				})
				continue
			}
			driver.Subsystems = append(driver.Subsystems, sub)
		}
	}
}

// extractProperties scans a subsystem class body for property-factory
// assignments. A property whose arguments cannot be constant-folded is
// dropped with a warning; the rest of the subsystem still parses.
func (ex *extractor) extractProperties(driverName string, class *ast.ClassDef) []PropertyMetadata {
	props := make([]PropertyMetadata, 0, len(class.Body))
	for _, stmt := range class.Body {
		assign, ok := stmt.(*ast.Assign)
		if !ok {
			continue
		}
		call, ok := assign.Value.(*ast.Call)
		if !ok {
			continue
		}
		factory, ok := call.Func.(*ast.Name)
		if !ok {
			continue
		}
		kind, ok := factoryKinds[factory.ID]
		if !ok {
			continue
		}

		prop, err := parseProperty(assign, call, kind)
		if err != nil {
			ex.warn(Warning{
				Message:   err.Error(),
				Driver:    driverName,
				Subsystem: class.Name,
				Property:  assign.Target.Name,
				Line:      assign.Loc.Line,
			})
			continue
		}
		props = append(props, *prop)
	}
	return props
}

// parseProperty extracts one property's metadata from its factory call
func parseProperty(assign *ast.Assign, call *ast.Call, kind PropertyKind) (*PropertyMetadata, error) {
	prop := &PropertyMetadata{
		Name:   assign.Target.Name,
		Kind:   kind,
		Access: AccessReadWrite,
		Line:   assign.Loc.Line,
	}

	if len(call.Args) == 0 {
		return nil, fmt.Errorf("property factory call without a command argument")
	}
	cmd, err := foldString(call.Args[0])
	if err != nil {
		return nil, fmt.Errorf("cannot fold command argument: %w", err)
	}
	prop.Cmd = cmd

	// Select properties take their choice list as the second positional
	// argument (or a 'choices' keyword, handled below).
	if kind == KindSelect && len(call.Args) > 1 {
		choices, err := foldStringList(call.Args[1])
		if err != nil {
			return nil, fmt.Errorf("cannot fold choices: %w", err)
		}
		prop.Choices = choices
	}

	var minValue, maxValue *float64
	for _, kw := range call.Keywords {
		switch kw.Arg {
		case "doc_str":
			if prop.Doc, err = foldString(kw.Value); err != nil {
				return nil, fmt.Errorf("cannot fold doc_str: %w", err)
			}
		case "units":
			if prop.Units, err = foldString(kw.Value); err != nil {
				return nil, fmt.Errorf("cannot fold units: %w", err)
			}
		case "type":
			if prop.ValueType, err = foldString(kw.Value); err != nil {
				return nil, fmt.Errorf("cannot fold type: %w", err)
			}
		case "access":
			s, err := foldString(kw.Value)
			if err != nil {
				return nil, fmt.Errorf("cannot fold access: %w", err)
			}
			prop.Access, err = parseAccess(s)
			if err != nil {
				return nil, err
			}
		case "choices":
			choices, err := foldStringList(kw.Value)
			if err != nil {
				return nil, fmt.Errorf("cannot fold choices: %w", err)
			}
			prop.Choices = choices
		case "range":
			bounds, err := foldConstant(kw.Value)
			if err != nil {
				return nil, fmt.Errorf("cannot fold range: %w", err)
			}
			list, ok := bounds.([]any)
			if !ok || len(list) != 2 {
				return nil, fmt.Errorf("range must be a two-element list or tuple")
			}
			lo, err := foldFloat(asExpr(kw.Value, 0))
			if err != nil {
				return nil, fmt.Errorf("cannot fold range minimum: %w", err)
			}
			hi, err := foldFloat(asExpr(kw.Value, 1))
			if err != nil {
				return nil, fmt.Errorf("cannot fold range maximum: %w", err)
			}
			prop.Range = &Range{Min: lo, Max: hi}
		case "min_value":
			v, err := foldFloat(kw.Value)
			if err != nil {
				return nil, fmt.Errorf("cannot fold min_value: %w", err)
			}
			minValue = &v
		case "max_value":
			v, err := foldFloat(kw.Value)
			if err != nil {
				return nil, fmt.Errorf("cannot fold max_value: %w", err)
			}
			maxValue = &v
		}
	}

	// Legacy drivers spell bounds as min_value/max_value instead of range.
	if prop.Range == nil && (minValue != nil || maxValue != nil) {
		r := &Range{Min: math.Inf(-1), Max: math.Inf(1)}
		if minValue != nil {
			r.Min = *minValue
		}
		if maxValue != nil {
			r.Max = *maxValue
		}
		prop.Range = r
	}

	if kind == KindSelect && len(prop.Choices) == 0 {
		return nil, fmt.Errorf("select property without a resolvable choice list")
	}
	if kind != KindValue {
		prop.Range = nil
	}
	if kind != KindSelect {
		prop.Choices = nil
	}

	return prop, nil
}

// asExpr returns element i of a list expression. Callers have already
// verified the shape via foldConstant.
func asExpr(e ast.Expr, i int) ast.Expr {
	if list, ok := e.(*ast.List); ok && i < len(list.Elts) {
		return list.Elts[i]
	}
	return e
}

func parseAccess(s string) (Access, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "read-write", "readwrite", "rw":
		return AccessReadWrite, nil
	case "read", "read-only", "r":
		return AccessRead, nil
	case "write", "write-only", "w":
		return AccessWrite, nil
	}
	return AccessReadWrite, fmt.Errorf("unknown access mode %q", s)
}

func (ex *extractor) warn(w Warning) {
	ex.warnings = append(ex.warnings, w)
}
