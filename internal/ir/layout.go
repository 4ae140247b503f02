package ir

// DataLayout answers size and alignment queries used to compute static
// offsets of address chains. Sizes are in bytes with natural alignment.
type DataLayout struct {
	PointerSize int
}

// DefaultLayout returns a 64-bit natural-alignment layout.
func DefaultLayout() *DataLayout {
	return &DataLayout{PointerSize: 8}
}

// SizeOf returns the allocation size of t, including tail padding.
func (l *DataLayout) SizeOf(t Type) int {
	switch tt := t.(type) {
	case *IntType:
		return roundPow2Bytes(tt.Width)
	case *FloatType:
		return roundPow2Bytes(tt.Bits)
	case *PointerType:
		return l.PointerSize
	case *ArrayType:
		return tt.Len * l.SizeOf(tt.Elem)
	case *VectorType:
		return tt.Len * l.SizeOf(tt.Elem)
	case *StructType:
		size, align := 0, 1
		for _, e := range tt.Elems {
			a := l.AlignOf(e)
			size = alignTo(size, a) + l.SizeOf(e)
			if a > align {
				align = a
			}
		}
		return alignTo(size, align)
	}
	return 0
}

// AlignOf returns the ABI alignment of t.
func (l *DataLayout) AlignOf(t Type) int {
	switch tt := t.(type) {
	case *ArrayType:
		return l.AlignOf(tt.Elem)
	case *VectorType:
		return l.SizeOf(tt)
	case *StructType:
		align := 1
		for _, e := range tt.Elems {
			if a := l.AlignOf(e); a > align {
				align = a
			}
		}
		return align
	case *PointerType:
		return l.PointerSize
	}
	if s := l.SizeOf(t); s > 0 {
		return s
	}
	return 1
}

// ElementOffset returns the byte offset of element idx in st.
func (l *DataLayout) ElementOffset(st *StructType, idx int) int {
	off := 0
	for i, e := range st.Elems {
		off = alignTo(off, l.AlignOf(e))
		if i == idx {
			return off
		}
		off += l.SizeOf(e)
	}
	return off
}

// Offset computes the constant byte offset of a GEP. The boolean result is
// false when an index is not a constant.
func (l *DataLayout) Offset(gep *Instruction) (int64, bool) {
	types := GEPTypes(gep)
	var total int64
	for k, idx := range gep.Operands[1:] {
		c, ok := idx.(*Const)
		if !ok {
			return 0, false
		}
		n := c.SExt()
		if k == 0 {
			total += n * int64(l.SizeOf(types[1]))
			continue
		}
		switch tt := types[k].(type) {
		case *StructType:
			total += int64(l.ElementOffset(tt, int(n)))
		case *ArrayType:
			total += n * int64(l.SizeOf(tt.Elem))
		case *VectorType:
			total += n * int64(l.SizeOf(tt.Elem))
		}
	}
	return total, true
}

func roundPow2Bytes(bits int) int {
	if bits <= 0 {
		return 0
	}
	bytes := (bits + 7) / 8
	p := 1
	for p < bytes {
		p <<= 1
	}
	return p
}

func alignTo(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}
