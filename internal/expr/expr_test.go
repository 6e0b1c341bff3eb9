package expr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func testContext() MapContext {
	return MapContext{
		"machine": map[string]any{
			"start":   5,
			"zero":    0,
			"name":    "attract",
			"enabled": true,
		},
		"current_player": map[string]any{
			"hits":    int64(3),
			"ball":    2,
			"targets": []any{10, 20},
			"empty":   "",
		},
	}
}

func TestCompileLiteral(t *testing.T) {
	e, err := Compile(" 42 ")
	require.NoError(t, err)

	assert.Equal(t, "42", e.String())
	assert.Empty(t, e.References())

	v, err := e.Eval(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestCompileNegativeLiteral(t *testing.T) {
	v, err := MustCompile("-3").Eval(Empty)
	require.NoError(t, err)
	assert.Equal(t, int64(-3), v)
}

func TestEvalContextPaths(t *testing.T) {
	ctx := testContext()
	tests := []struct {
		src  string
		want int64
	}{
		{"machine.start", 5},
		{"current_player.hits + 1", 4},
		{"current_player.hits * machine.start", 15},
		{"current_player.targets[1]", 20},
		{"machine.enabled ? machine.start : 0", 5},
		{`"7"`, 7},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := MustCompile(tt.src).Eval(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalConditionalDefault(t *testing.T) {
	ctx := testContext()
	tests := []struct {
		src  string
		want int64
	}{
		{"machine.start if machine.start else 0", 5},
		{"machine.start if machine.zero else 9", 9},
		{"1 if machine.name else 2", 1},
		{"1 if current_player.empty else 2", 2},
		{"1 if machine.enabled else 2", 1},
		{"1 if current_player.targets else 2", 1},
		{"1 if machine.zero else 2 if machine.start else 3", 2},
		{"(current_player.ball + 1) if current_player.ball > 1 else 0", 3},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := MustCompile(tt.src).Eval(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalConditionalResolvesOnlySelectedBranch(t *testing.T) {
	ctx := testContext()

	got, err := MustCompile("machine.start if machine.start else missing.value").Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)

	_, err = MustCompile("machine.start if machine.zero else missing.value").Eval(ctx)
	require.Error(t, err)
	assert.True(t, IsUnresolvedReference(err))
}

func TestEvalUnresolvedReference(t *testing.T) {
	_, err := MustCompile("machine.start").Eval(MapContext{})
	require.Error(t, err)

	var ref *UnresolvedReferenceError
	require.ErrorAs(t, err, &ref)
	assert.Equal(t, []string{"machine", "start"}, ref.Path)
	assert.Equal(t, "machine.start", ref.Expr)
	assert.Contains(t, err.Error(), `"machine.start"`)
}

func TestEvalUnresolvedNestedReference(t *testing.T) {
	_, err := MustCompile("machine.missing + 1").Eval(testContext())
	assert.True(t, IsUnresolvedReference(err))

	_, err = MustCompile("1 if machine.missing else 2").Eval(testContext())
	assert.True(t, IsUnresolvedReference(err))
}

func TestEvalNonInteger(t *testing.T) {
	_, err := MustCompile("machine.name").Eval(testContext())
	require.Error(t, err)

	var evalErr *EvalError
	assert.ErrorAs(t, err, &evalErr)
	assert.False(t, IsUnresolvedReference(err))

	_, err = MustCompile("current_player.hits / 2").Eval(testContext())
	assert.ErrorAs(t, err, &evalErr)
}

func TestCompileErrors(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"machine.start if machine.start",
		"if machine.start else 1",
		"machine.start if else 1",
		"machine.start +",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := Compile(src)
			require.Error(t, err)
			var syn *SyntaxError
			assert.ErrorAs(t, err, &syn)
		})
	}
	assert.Panics(t, func() { MustCompile("(") })
}

func TestReferences(t *testing.T) {
	e := MustCompile("current_player.hits if machine.start else current_player.targets[0]")
	assert.Equal(t, []string{"current_player.hits", "current_player.targets.0", "machine.start"}, e.References())
}

func TestKeywordInsideStringIgnored(t *testing.T) {
	e := MustCompile(`machine.name == "if else" ? 1 : 2`)
	got, err := e.Eval(testContext())
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}

func TestIdentifierContainingKeyword(t *testing.T) {
	ctx := MapContext{"iffy": map[string]any{"elsewhere": 4}}
	got, err := MustCompile("iffy.elsewhere").Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(cty.NullVal(cty.Number)))
	assert.False(t, Truthy(cty.False))
	assert.True(t, Truthy(cty.True))
	assert.False(t, Truthy(cty.Zero))
	assert.True(t, Truthy(cty.NumberIntVal(-1)))
	assert.False(t, Truthy(cty.StringVal("")))
	assert.True(t, Truthy(cty.StringVal("0")))
	assert.True(t, Truthy(cty.EmptyObjectVal))
	assert.False(t, Truthy(cty.UnknownVal(cty.Bool)))
}

func TestErrorMessages(t *testing.T) {
	_, err := Compile("machine.start +")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), `invalid expression "machine.start +"`))
}
