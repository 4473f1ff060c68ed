package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicholaslyang/tci/internal/filedb"
	"github.com/nicholaslyang/tci/lang/typed"
)

func mainTable(body []typed.Stmt) typed.Table {
	return typed.Table{
		"main": typed.Record{
			Type: typed.FuncType{Return: typed.I32},
			Def:  &typed.FuncDef{Body: body},
		},
	}
}

func TestAssembleSimpleReturn(t *testing.T) {
	a := New(filedb.New())
	body := []typed.Stmt{
		&typed.ReturnValueStmt{Expr: typed.NewIntLit(filedb.Zero, typed.I32, 0)},
	}
	require.NoError(t, a.AddFile(mainTable(body)))

	prog, err := a.Assemble()
	require.NoError(t, err)
	assert.Equal(t, Func, prog.Ops[prog.MainIdx].Op.Code)
}

func TestAssembleMissingMain(t *testing.T) {
	a := New(filedb.New())
	table := typed.Table{
		"helper": typed.Record{
			Type: typed.FuncType{Return: typed.Void},
			Def:  &typed.FuncDef{Body: []typed.Stmt{&typed.ReturnStmt{}}},
		},
	}
	require.NoError(t, a.AddFile(table))

	_, err := a.Assemble()
	require.Error(t, err)
	diag, ok := err.(filedb.Diagnostic)
	require.True(t, ok)
	assert.Equal(t, "missing_main", diag.ShortName)
}

func TestAssembleFuncRedefinition(t *testing.T) {
	a := New(filedb.New())
	def := func() *typed.FuncDef { return &typed.FuncDef{Body: []typed.Stmt{&typed.ReturnStmt{}}} }
	table := typed.Table{
		"f": {Type: typed.FuncType{Return: typed.Void}, Def: def()},
	}
	require.NoError(t, a.AddFile(table))

	table2 := typed.Table{
		"f": {Type: typed.FuncType{Return: typed.Void}, Def: def()},
	}
	err := a.AddFile(table2)
	require.Error(t, err)
	diag, ok := err.(filedb.Diagnostic)
	require.True(t, ok)
	assert.Equal(t, "func_redef", diag.ShortName)
}

func TestAssembleFuncDeclMismatch(t *testing.T) {
	a := New(filedb.New())
	table := typed.Table{
		"f": {Type: typed.FuncType{Return: typed.I32}},
	}
	require.NoError(t, a.AddFile(table))

	table2 := typed.Table{
		"f": {Type: typed.FuncType{Return: typed.Void}},
	}
	err := a.AddFile(table2)
	require.Error(t, err)
	diag, ok := err.(filedb.Diagnostic)
	require.True(t, ok)
	assert.Equal(t, "func_decl_mismatch", diag.ShortName)
}

func TestAssembleUndefinedSymbol(t *testing.T) {
	a := New(filedb.New())
	body := []typed.Stmt{
		&typed.ExprStmt{Expr: typed.NewCallExpr(filedb.Zero, typed.Void, "nonexistent", nil)},
		&typed.ReturnValueStmt{Expr: typed.NewIntLit(filedb.Zero, typed.I32, 0)},
	}
	require.NoError(t, a.AddFile(mainTable(body)))

	_, err := a.Assemble()
	require.Error(t, err)
	diag, ok := err.(filedb.Diagnostic)
	require.True(t, ok)
	assert.Equal(t, "undefined_symbol", diag.ShortName)
}

func TestPrintfAlwaysVariadicAtCallSite(t *testing.T) {
	a := New(filedb.New())
	fmtArg := typed.NewStringLit(filedb.Zero, "%d\n")
	body := []typed.Stmt{
		&typed.ExprStmt{Expr: typed.NewCallExpr(filedb.Zero, typed.I32, "printf", []typed.Expr{fmtArg})},
		&typed.ReturnValueStmt{Expr: typed.NewIntLit(filedb.Zero, typed.I32, 0)},
	}
	require.NoError(t, a.AddFile(mainTable(body)))

	prog, err := a.Assemble()
	require.NoError(t, err)

	var sawCountSlot bool
	for _, top := range prog.Ops {
		if top.Op.Code == MakeTempI32 && top.Op.I32 == 1 {
			sawCountSlot = true
		}
	}
	assert.True(t, sawCountSlot, "printf call must push a vararg count slot even though it has no declared typed.FuncType")
}
