package ordering

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/bilgisen/altavoz/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin  = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
	editor = models.Actor{ID: "editor-1", Role: models.RoleEditor}
)

func TestDragRequiresAdmin(t *testing.T) {
	for _, actor := range []models.Actor{models.Anonymous, editor, {ID: "u", Role: models.RoleUser}} {
		d := NewDragController(actor, []string{"a", "b"})
		assert.False(t, d.Enabled())
		assert.ErrorIs(t, d.Begin(0), ErrNotPrivileged)
		assert.Equal(t, StateIdle, d.State())
	}
}

func TestDragDropEmitsMovedSequence(t *testing.T) {
	d := NewDragController(admin, []string{"a", "b", "c", "d"})

	require.NoError(t, d.Begin(0))
	assert.Equal(t, StateDragging, d.State())

	order, emitted, err := d.Drop(2)
	require.NoError(t, err)
	assert.True(t, emitted)
	assert.Equal(t, []string{"b", "c", "a", "d"}, order)
	assert.Equal(t, StateDropped, d.State())
	assert.Equal(t, order, d.Order())
}

func TestDragDropOnSourceIsNoop(t *testing.T) {
	d := NewDragController(admin, []string{"a", "b", "c"})

	require.NoError(t, d.Begin(1))
	order, emitted, err := d.Drop(1)
	require.NoError(t, err)
	assert.False(t, emitted)
	assert.Nil(t, order)
	assert.Equal(t, []string{"a", "b", "c"}, d.Order())
}

func TestDragReleaseOutsideCancels(t *testing.T) {
	d := NewDragController(admin, []string{"a", "b"})

	require.NoError(t, d.Begin(0))
	_, emitted, err := d.Drop(5)
	require.NoError(t, err)
	assert.False(t, emitted)
	assert.Equal(t, StateCancelled, d.State())
	assert.Equal(t, []string{"a", "b"}, d.Order())
}

func TestDragCancel(t *testing.T) {
	d := NewDragController(admin, []string{"a", "b"})

	assert.ErrorIs(t, d.Cancel(), ErrNotDragging)
	require.NoError(t, d.Begin(1))
	require.NoError(t, d.Cancel())
	assert.Equal(t, StateCancelled, d.State())
	assert.Equal(t, []string{"a", "b"}, d.Order())
}

func TestDragInteractionsAreSequential(t *testing.T) {
	d := NewDragController(admin, []string{"a", "b", "c"})

	_, _, err := d.Drop(1)
	assert.ErrorIs(t, err, ErrNotDragging)

	require.NoError(t, d.Begin(2))
	assert.ErrorIs(t, d.Begin(0), ErrDragInProgress)

	_, emitted, err := d.Drop(0)
	require.NoError(t, err)
	require.True(t, emitted)

	// a finished interaction allows the next one on the new order
	require.NoError(t, d.Begin(0))
	order, emitted, err := d.Drop(2)
	require.NoError(t, err)
	assert.True(t, emitted)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestDragBeginOutOfRange(t *testing.T) {
	d := NewDragController(admin, nil)
	assert.ErrorIs(t, d.Begin(0), ErrIndexOutOfRange)

	d = NewDragController(admin, []string{"a"})
	assert.ErrorIs(t, d.Begin(-1), ErrIndexOutOfRange)
	assert.Equal(t, StateIdle, d.State())
}

func TestDragStateString(t *testing.T) {
	assert.Equal(t, "dragging", StateDragging.String())
	assert.Equal(t, "DragState(9)", DragState(9).String())
}

func TestExportedDragAPIIsDocumented(t *testing.T) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "drag.go", nil, parser.ParseComments)
	require.NoError(t, err)

	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || (gen.Tok != token.CONST && gen.Tok != token.VAR) {
			continue
		}
		for _, spec := range gen.Specs {
			vs := spec.(*ast.ValueSpec)
			for _, name := range vs.Names {
				if name.IsExported() {
					assert.NotNil(t, vs.Doc, "%s has no doc comment", name.Name)
				}
			}
		}
	}
}
