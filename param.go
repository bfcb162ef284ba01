package lys

import "encoding/binary"

// Param is one typed protocol value. Scalar constructors store the
// value's wire bytes in Data; decoded params borrow Data from the
// engine's scratch buffer and are only valid until the next engine
// operation.
type Param struct {
	Type  Type
	Elem  Type // array element type
	Count int  // array element count
	Data  []byte
}

func U32(v uint32) Param {
	data := make([]byte, 4)
	binary.NativeEndian.PutUint32(data, v)
	return Param{Type: TypeU32, Data: data}
}

func I32(v int32) Param {
	data := make([]byte, 4)
	binary.NativeEndian.PutUint32(data, uint32(v))
	return Param{Type: TypeI32, Data: data}
}

func U8(v uint8) Param {
	return Param{Type: TypeU8, Data: []byte{v}}
}

func I8(v int8) Param {
	return Param{Type: TypeI8, Data: []byte{uint8(v)}}
}

func Bool(v bool) Param {
	data := []byte{0}
	if v {
		data[0] = 1
	}
	return Param{Type: TypeBool, Data: data}
}

// Str returns a string parameter holding a copy of s. Strings are byte sequences;
// they are neither null-terminated nor required to be UTF-8.
func Str(s string) Param {
	return Param{Type: TypeString, Data: []byte(s)}
}

func U32s(v []uint32) Param {
	data := make([]byte, 4*len(v))
	for i, x := range v {
		binary.NativeEndian.PutUint32(data[4*i:], x)
	}
	return Param{Type: TypeArray, Elem: TypeU32, Count: len(v), Data: data}
}

func I32s(v []int32) Param {
	data := make([]byte, 4*len(v))
	for i, x := range v {
		binary.NativeEndian.PutUint32(data[4*i:], uint32(x))
	}
	return Param{Type: TypeArray, Elem: TypeI32, Count: len(v), Data: data}
}

func U8s(v []uint8) Param {
	data := make([]byte, len(v))
	copy(data, v)
	return Param{Type: TypeArray, Elem: TypeU8, Count: len(v), Data: data}
}

func I8s(v []int8) Param {
	data := make([]byte, len(v))
	for i, x := range v {
		data[i] = uint8(x)
	}
	return Param{Type: TypeArray, Elem: TypeI8, Count: len(v), Data: data}
}

func Bools(v []bool) Param {
	data := make([]byte, len(v))
	for i, x := range v {
		if x {
			data[i] = 1
		}
	}
	return Param{Type: TypeArray, Elem: TypeBool, Count: len(v), Data: data}
}

func (p Param) Uint32() uint32 { return binary.NativeEndian.Uint32(p.Data) }
func (p Param) Int32() int32   { return int32(binary.NativeEndian.Uint32(p.Data)) }
func (p Param) Uint8() uint8   { return p.Data[0] }
func (p Param) Int8() int8     { return int8(p.Data[0]) }
func (p Param) Bool() bool     { return p.Data[0] != 0 }

// Bytes returns the raw value bytes: the scalar encoding, the string
// contents, or the concatenated array elements.
func (p Param) Bytes() []byte { return p.Data }

// Text returns the contents of a string parameter.
func (p Param) Text() string { return string(p.Data) }

// Store copies the received value into dst, a pointer to uint32,
// int32, uint8, int8, bool, String or Array matching the parameter's
// type.
func (p Param) Store(dst any) error { return copyParam(dst, p) }

// clone copies p so that it no longer aliases codec storage.
func (p Param) clone() Param {
	p.Data = append([]byte(nil), p.Data...)
	return p
}

// String holds a received string parameter in caller-owned storage.
type String struct {
	Len  int
	Data [MaxStringLen]byte
}

func (s *String) Bytes() []byte  { return s.Data[:s.Len] }
func (s *String) String() string { return string(s.Data[:s.Len]) }

func (s *String) set(src []byte) error {
	if len(src) == 0 || len(src) > MaxStringLen {
		return ErrInvalidParam
	}
	s.Len = copy(s.Data[:], src)
	return nil
}

// Array holds a received array parameter in caller-owned storage.
type Array struct {
	Elem  Type
	Count int
	Data  [MaxArrayLen]byte
}

func (a *Array) set(elem Type, count int, src []byte) error {
	size, err := sizeOf(elem)
	if err != nil {
		return err
	}
	if size == variableSize {
		// Array elements have a fixed, non-zero length.
		return ErrInvalidParam
	}
	n := size * count
	if n > MaxArrayLen || len(src) < n {
		return ErrInvalidParam
	}
	a.Elem = elem
	a.Count = count
	copy(a.Data[:], src[:n])
	return nil
}

// Bytes returns the concatenated element bytes.
func (a *Array) Bytes() []byte {
	size, err := sizeOf(a.Elem)
	if err != nil || size == variableSize {
		return nil
	}
	return a.Data[:size*a.Count]
}

func (a *Array) Uint32s() []uint32 {
	if a.Elem != TypeU32 {
		return nil
	}
	v := make([]uint32, a.Count)
	for i := range v {
		v[i] = binary.NativeEndian.Uint32(a.Data[4*i:])
	}
	return v
}

func (a *Array) Int32s() []int32 {
	if a.Elem != TypeI32 {
		return nil
	}
	v := make([]int32, a.Count)
	for i := range v {
		v[i] = int32(binary.NativeEndian.Uint32(a.Data[4*i:]))
	}
	return v
}

func (a *Array) Uint8s() []uint8 {
	if a.Elem != TypeU8 {
		return nil
	}
	return append([]uint8(nil), a.Data[:a.Count]...)
}

func (a *Array) Int8s() []int8 {
	if a.Elem != TypeI8 {
		return nil
	}
	v := make([]int8, a.Count)
	for i := range v {
		v[i] = int8(a.Data[i])
	}
	return v
}

func (a *Array) Bools() []bool {
	if a.Elem != TypeBool {
		return nil
	}
	v := make([]bool, a.Count)
	for i := range v {
		v[i] = a.Data[i] != 0
	}
	return v
}

// copyParam copies a received value into the caller's destination.
// The destination pointer type determines the expected parameter type.
func copyParam(dst any, src Param) error {
	switch d := dst.(type) {
	case *uint32:
		if src.Type != TypeU32 {
			return ErrInvalidParam
		}
		*d = src.Uint32()
	case *int32:
		if src.Type != TypeI32 {
			return ErrInvalidParam
		}
		*d = src.Int32()
	case *uint8:
		if src.Type != TypeU8 {
			return ErrInvalidParam
		}
		*d = src.Uint8()
	case *int8:
		if src.Type != TypeI8 {
			return ErrInvalidParam
		}
		*d = src.Int8()
	case *bool:
		if src.Type != TypeBool {
			return ErrInvalidParam
		}
		*d = src.Bool()
	case *String:
		if src.Type != TypeString {
			return ErrInvalidParam
		}
		return d.set(src.Data)
	case *Array:
		if src.Type != TypeArray {
			return ErrInvalidParam
		}
		return d.set(src.Elem, src.Count, src.Data)
	default:
		return ErrInvalidParam
	}
	return nil
}
