package attribute

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

type Kind int

const (
	KindReal Kind = iota
	KindComplex
	KindInt
	KindBool
	KindString
	KindRealVector
	KindComplexVector
	KindMatrix
)

func (k Kind) String() string {
	switch k {
	case KindReal:
		return "real"
	case KindComplex:
		return "complex"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindRealVector:
		return "real vector"
	case KindComplexVector:
		return "complex vector"
	case KindMatrix:
		return "matrix"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is a tagged union over every attribute type. Only the field matching
// Kind is meaningful.
type Value struct {
	Kind          Kind
	Real          float64
	Complex       complex128
	Int           int
	Bool          bool
	Str           string
	RealVector    []float64
	ComplexVector []complex128
	Matrix        *mat.Dense
}

func RealValue(v float64) Value       { return Value{Kind: KindReal, Real: v} }
func ComplexValue(v complex128) Value { return Value{Kind: KindComplex, Complex: v} }
func IntValue(v int) Value            { return Value{Kind: KindInt, Int: v} }
func BoolValue(v bool) Value          { return Value{Kind: KindBool, Bool: v} }
func StringValue(v string) Value      { return Value{Kind: KindString, Str: v} }

func (v Value) Interface() any {
	switch v.Kind {
	case KindReal:
		return v.Real
	case KindComplex:
		return v.Complex
	case KindInt:
		return v.Int
	case KindBool:
		return v.Bool
	case KindString:
		return v.Str
	case KindRealVector:
		return v.RealVector
	case KindComplexVector:
		return v.ComplexVector
	case KindMatrix:
		return v.Matrix
	}
	return nil
}

// Scalars flattens the value into named real columns, suffixing complex
// entries with .re/.im and vector entries with their index.
func (v Value) Scalars(name string) map[string]float64 {
	out := make(map[string]float64)
	switch v.Kind {
	case KindReal:
		out[name] = v.Real
	case KindInt:
		out[name] = float64(v.Int)
	case KindBool:
		if v.Bool {
			out[name] = 1
		} else {
			out[name] = 0
		}
	case KindComplex:
		out[name+".re"] = real(v.Complex)
		out[name+".im"] = imag(v.Complex)
	case KindRealVector:
		for i, x := range v.RealVector {
			out[fmt.Sprintf("%s_%d", name, i)] = x
		}
	case KindComplexVector:
		for i, x := range v.ComplexVector {
			out[fmt.Sprintf("%s_%d.re", name, i)] = real(x)
			out[fmt.Sprintf("%s_%d.im", name, i)] = imag(x)
		}
	case KindMatrix:
		if v.Matrix == nil {
			break
		}
		r, c := v.Matrix.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				out[fmt.Sprintf("%s_%d_%d", name, i, j)] = v.Matrix.At(i, j)
			}
		}
	}
	return out
}

func (v Value) String() string {
	switch v.Kind {
	case KindComplex:
		return fmt.Sprintf("%.4g<%.2fdeg", cmplx.Abs(v.Complex), cmplx.Phase(v.Complex)*180/math.Pi)
	case KindMatrix:
		if v.Matrix == nil {
			return "[]"
		}
		return fmt.Sprintf("%v", mat.Formatted(v.Matrix, mat.Squeeze()))
	}
	return fmt.Sprintf("%v", v.Interface())
}

func kindOf(x any) Kind {
	switch x.(type) {
	case float64:
		return KindReal
	case complex128:
		return KindComplex
	case int:
		return KindInt
	case bool:
		return KindBool
	case string:
		return KindString
	case []float64:
		return KindRealVector
	case []complex128:
		return KindComplexVector
	case *mat.Dense:
		return KindMatrix
	}
	panic(fmt.Sprintf("attribute: unsupported type %T", x))
}

func valueOf(x any) Value {
	switch v := x.(type) {
	case float64:
		return RealValue(v)
	case complex128:
		return ComplexValue(v)
	case int:
		return IntValue(v)
	case bool:
		return BoolValue(v)
	case string:
		return StringValue(v)
	case []float64:
		return Value{Kind: KindRealVector, RealVector: v}
	case []complex128:
		return Value{Kind: KindComplexVector, ComplexVector: v}
	case *mat.Dense:
		return Value{Kind: KindMatrix, Matrix: v}
	}
	panic(fmt.Sprintf("attribute: unsupported type %T", x))
}
