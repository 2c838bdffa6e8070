package attribute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestAttributeSlots(t *testing.T) {
	store := NewStore("L1")
	v := New(store, "v_intf", Read, []complex128{1 + 1i})

	assert.Equal(t, "L1", v.Owner())
	assert.Equal(t, KindComplexVector, v.Kind())
	assert.Equal(t, []complex128{1 + 1i}, v.Prev())

	v.Set([]complex128{2})
	assert.Equal(t, []complex128{2}, v.Get())
	assert.Equal(t, []complex128{1 + 1i}, v.Prev(), "prev slot untouched until snapshot")

	v.Snapshot()
	assert.Equal(t, []complex128{2}, v.Prev())

	// The snapshot is a deep copy.
	cur := v.Get()
	cur[0] = 3
	assert.Equal(t, []complex128{2}, v.Prev())
}

func TestMatrixSnapshotIsDeepCopy(t *testing.T) {
	m := New(nil, "A", Read, mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	m.Snapshot()
	m.Get().Set(0, 0, 9)

	assert.Equal(t, 1.0, m.Prev().At(0, 0))
	assert.Equal(t, KindMatrix, m.Kind())
}

func TestStoreSetHonoursFlags(t *testing.T) {
	store := NewStore("R1")
	r := New(store, "R", ReadWrite, 1.0)
	New(store, "i_intf", Read, complex(0, 0))

	require.NoError(t, store.Set("R", RealValue(2.5)))
	assert.Equal(t, 2.5, r.Get())

	err := store.Set("i_intf", ComplexValue(1))
	assert.ErrorIs(t, err, ErrReadOnly)

	err = store.Set("R", IntValue(3))
	assert.ErrorIs(t, err, ErrKindMismatch)

	err = store.Set("missing", RealValue(1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreDuplicatePanics(t *testing.T) {
	store := NewStore("C1")
	New(store, "C", ReadWrite, 1e-6)
	assert.Panics(t, func() { New(store, "C", ReadWrite, 2e-6) })
}

func TestViewValues(t *testing.T) {
	store := NewStore("G")
	New(store, "w_r", Read, 1.0)
	New(store, "closed", ReadWrite, true)
	New(store, "order", Read, "6b")

	view := store.View()
	assert.Equal(t, []string{"closed", "order", "w_r"}, view.Names())

	val, err := view.Value("w_r")
	require.NoError(t, err)
	assert.Equal(t, 1.0, val.Real)

	values := view.Values()
	assert.True(t, values["closed"].Bool)
	assert.Equal(t, "6b", values["order"].Str)

	_, err = view.Value("delta")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValueScalars(t *testing.T) {
	assert.Equal(t, map[string]float64{"v.re": 1, "v.im": -2}, ComplexValue(1-2i).Scalars("v"))
	assert.Equal(t, map[string]float64{"on": 1}, BoolValue(true).Scalars("on"))
	assert.Equal(t,
		map[string]float64{"x_0": 1, "x_1": 2},
		Value{Kind: KindRealVector, RealVector: []float64{1, 2}}.Scalars("x"))
	assert.Equal(t,
		map[string]float64{"i_0.re": 1, "i_0.im": 0},
		Value{Kind: KindComplexVector, ComplexVector: []complex128{1}}.Scalars("i"))
	assert.Equal(t,
		map[string]float64{"m_0_0": 1, "m_0_1": 2},
		Value{Kind: KindMatrix, Matrix: mat.NewDense(1, 2, []float64{1, 2})}.Scalars("m"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "complex vector", KindComplexVector.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}
