package util

// CopyFloats returns a copy of s.
func CopyFloats(s []float64) []float64 {
	out := make([]float64, len(s))
	copy(out, s)
	return out
}

// CopyMatrix returns a row-by-row copy of m.
func CopyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = CopyFloats(row)
	}
	return out
}

// Clip returns v limited to [-bound, bound].
func Clip(v, bound float64) float64 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}

// ClipFloats returns a copy of s with every element clipped to
// [-bound, bound].
func ClipFloats(s []float64, bound float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = Clip(v, bound)
	}
	return out
}

// Concat returns the concatenation of a and b as a new slice.
func Concat(a, b []float64) []float64 {
	out := make([]float64, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
