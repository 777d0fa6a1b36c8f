package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gometr/gometr/internal/driver/ast"
)

func parse(t *testing.T, source string) *ast.Module {
	t.Helper()
	module, errs := ParseSource(source)
	require.Empty(t, errs)
	return module
}

func TestParseClassWithBases(t *testing.T) {
	module := parse(t, "class Channel(Subsystem):\n    pass\n")
	require.Len(t, module.Body, 1)

	class, ok := module.Body[0].(*ast.ClassDef)
	require.True(t, ok)
	assert.Equal(t, "Channel", class.Name)
	assert.Equal(t, []string{"Subsystem"}, class.Bases)
	assert.True(t, class.HasBase("Subsystem"))
	assert.False(t, class.HasBase("Instrument"))
}

func TestParseDottedBase(t *testing.T) {
	module := parse(t, "class Scope(pymetr.Instrument):\n    pass\n")
	class := module.Body[0].(*ast.ClassDef)
	assert.Equal(t, []string{"pymetr.Instrument"}, class.Bases)
	assert.True(t, class.HasBase("Instrument"), "dotted bases match on the final component")
}

func TestParseClassBodyAssignments(t *testing.T) {
	source := `class Channel(Subsystem):
    probe = value_property(':PROBe', type="float")
    coupling = select_property(':COUPling', ['AC', 'DC'])
`
	module := parse(t, source)
	class := module.Body[0].(*ast.ClassDef)
	require.Len(t, class.Body, 2)

	probe := class.Body[0].(*ast.Assign)
	assert.Equal(t, "probe", probe.Target.Name)

	call := probe.Value.(*ast.Call)
	assert.Equal(t, "value_property", ast.DottedName(call.Func))
	require.Len(t, call.Args, 1)
	cmd := call.Args[0].(*ast.Constant)
	assert.Equal(t, ":PROBe", cmd.Str)
	require.Len(t, call.Keywords, 1)
	assert.Equal(t, "type", call.Keywords[0].Arg)

	coupling := class.Body[1].(*ast.Assign)
	couplingCall := coupling.Value.(*ast.Call)
	require.Len(t, couplingCall.Args, 2)
	choices := couplingCall.Args[1].(*ast.List)
	assert.Len(t, choices.Elts, 2)
}

func TestParseFuncBodyAssignments(t *testing.T) {
	source := `class Scope(Instrument):
    def __init__(self, resource):
        super().__init__(resource)
        self.channel = Channel.build(self, ':CHANnel', indices=4)
`
	module := parse(t, source)
	class := module.Body[0].(*ast.ClassDef)
	require.Len(t, class.Body, 1)

	init := class.Body[0].(*ast.FuncDef)
	assert.Equal(t, "__init__", init.Name)
	assert.Equal(t, []string{"self", "resource"}, init.Args)

	// The super() call is skipped; the binding assignment survives.
	require.Len(t, init.Body, 1)
	assign := init.Body[0].(*ast.Assign)
	assert.Equal(t, "self", assign.Target.Object)
	assert.Equal(t, "channel", assign.Target.Name)

	call := assign.Value.(*ast.Call)
	attr := call.Func.(*ast.Attribute)
	assert.Equal(t, "build", attr.Attr)
	assert.Equal(t, "Channel", ast.DottedName(attr.Value))
	require.Len(t, call.Keywords, 1)
	assert.Equal(t, "indices", call.Keywords[0].Arg)
	idx := call.Keywords[0].Value.(*ast.Constant)
	assert.Equal(t, int64(4), idx.Int)
}

func TestParseDecorators(t *testing.T) {
	source := `class Scope(Instrument):
    @Sources.source_command(':DIGitize {}')
    def digitize(self, *sources):
        pass
`
	module := parse(t, source)
	class := module.Body[0].(*ast.ClassDef)
	fn := class.Body[0].(*ast.FuncDef)

	require.Len(t, fn.Decorators, 1)
	call := fn.Decorators[0].(*ast.Call)
	assert.Equal(t, "Sources.source_command", ast.DottedName(call.Func))
	assert.Equal(t, []string{"self"}, fn.Args, "star parameters are not positional")
}

func TestParseReturnAnnotation(t *testing.T) {
	module := parse(t, "def fetch(self) -> bytes:\n    pass\n")
	fn := module.Body[0].(*ast.FuncDef)
	assert.Equal(t, "bytes", fn.Returns)
}

func TestParseNegativeNumbers(t *testing.T) {
	module := parse(t, "level = value_property(':LEVel', min_value=-6.0, max_value=6.0)\n")
	assign := module.Body[0].(*ast.Assign)
	call := assign.Value.(*ast.Call)
	require.Len(t, call.Keywords, 2)

	neg := call.Keywords[0].Value.(*ast.UnaryOp)
	assert.Equal(t, byte('-'), neg.Op)
	operand := neg.Operand.(*ast.Constant)
	assert.Equal(t, 6.0, operand.Float)
}

func TestParseTupleAsList(t *testing.T) {
	module := parse(t, "bounds = (0.001, 10.0)\n")
	assign := module.Body[0].(*ast.Assign)
	tuple := assign.Value.(*ast.List)
	require.Len(t, tuple.Elts, 2)
}

func TestParseSkipsUnmodeledStatements(t *testing.T) {
	source := `import numpy
from pymetr.core import Instrument

CONSTANT_TABLE = {1: 'a'}

class Scope(Instrument):
    """Docstring."""

    def run(self):
        if self.armed:
            self.write(':RUN')
        return True
`
	module := parse(t, source)

	// The dict assignment parses (its value is opaque); imports and the
	// docstring vanish.
	var classes []*ast.ClassDef
	for _, stmt := range module.Body {
		if c, ok := stmt.(*ast.ClassDef); ok {
			classes = append(classes, c)
		}
	}
	require.Len(t, classes, 1)
	fn := classes[0].Body[0].(*ast.FuncDef)
	assert.Equal(t, "run", fn.Name)
	assert.Empty(t, fn.Body, "control flow inside methods is skipped, not modeled")
}

func TestParseMultilineCall(t *testing.T) {
	source := `scale = value_property(
    ':SCALe',
    type="float",
    range=[0.001, 10.0],
)
`
	module := parse(t, source)
	assign := module.Body[0].(*ast.Assign)
	call := assign.Value.(*ast.Call)
	require.Len(t, call.Args, 1)
	assert.Len(t, call.Keywords, 2)
}

func TestParseErrorRecovery(t *testing.T) {
	// The malformed class yields errors, but the next class still parses.
	source := "class Broken(:\n    pass\n\nclass Fine(Subsystem):\n    probe = value_property(':PROBe')\n"
	module, errs := ParseSource(source)
	assert.NotEmpty(t, errs)

	var names []string
	for _, stmt := range module.Body {
		if c, ok := stmt.(*ast.ClassDef); ok {
			names = append(names, c.Name)
		}
	}
	assert.Contains(t, names, "Fine")
}

func TestParseErrorPositions(t *testing.T) {
	_, errs := ParseSource("class :\n")
	require.NotEmpty(t, errs)
	assert.Equal(t, 1, errs[0].Line)
}
