package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"classlift/internal/ir"
)

func TestParseFieldPrimitives(t *testing.T) {
	for s, want := range map[string]ir.StackKind{
		"B": ir.KindByte,
		"C": ir.KindChar,
		"D": ir.KindDouble,
		"F": ir.KindFloat,
		"I": ir.KindInt,
		"J": ir.KindLong,
		"S": ir.KindShort,
		"Z": ir.KindBoolean,
	} {
		ft, err := ParseField(s)
		require.NoError(t, err, s)
		require.Equal(t, want, ft.Primitive, s)
		require.False(t, ft.IsRef)
		require.False(t, ft.IsArray)
	}
}

func TestParseFieldReferenceConvertsSlashesToDots(t *testing.T) {
	ft, err := ParseField("Ljava/lang/String;")
	require.NoError(t, err)
	require.True(t, ft.IsRef)
	require.Equal(t, "java.lang.String", ft.ClassName)
	require.Equal(t, ir.KindReference, ft.StackKind())
	require.Equal(t, 1, ft.Width())
}

func TestParseFieldNestedArray(t *testing.T) {
	ft, err := ParseField("[[I")
	require.NoError(t, err)
	require.True(t, ft.IsArray)
	require.True(t, ft.Elem.IsArray)
	require.Equal(t, ir.KindInt, ft.Elem.Elem.Primitive)
	require.Equal(t, ir.KindReference, ft.StackKind())
}

func TestParseFieldRejectsTrailingData(t *testing.T) {
	_, err := ParseField("II")
	require.Error(t, err)
}

func TestParseFieldRejectsUnterminatedClassName(t *testing.T) {
	_, err := ParseField("Ljava/lang/String")
	require.Error(t, err)
}

func TestParseMethodVoidNoArgs(t *testing.T) {
	mt, err := ParseMethod("()V")
	require.NoError(t, err)
	require.Empty(t, mt.Params)
	require.Nil(t, mt.ReturnType)
}

func TestParseMethodMixedParamsAndReturn(t *testing.T) {
	mt, err := ParseMethod("(I[Ljava/lang/String;D)Z")
	require.NoError(t, err)
	require.Len(t, mt.Params, 3)
	require.Equal(t, ir.KindInt, mt.Params[0].Primitive)
	require.True(t, mt.Params[1].IsArray)
	require.Equal(t, ir.KindDouble, mt.Params[2].Primitive)
	require.NotNil(t, mt.ReturnType)
	require.Equal(t, ir.KindBoolean, mt.ReturnType.Primitive)
}

func TestParseMethodRejectsMissingOpenParen(t *testing.T) {
	_, err := ParseMethod("I)V")
	require.Error(t, err)
}

func TestParseMethodRejectsUnterminatedParams(t *testing.T) {
	_, err := ParseMethod("(I")
	require.Error(t, err)
}

func TestFieldTypeWidthForLongAndDouble(t *testing.T) {
	j, err := ParseField("J")
	require.NoError(t, err)
	require.Equal(t, 2, j.Width())

	d, err := ParseField("D")
	require.NoError(t, err)
	require.Equal(t, 2, d.Width())
}
