package layout

import "fmt"

// CastMask bits describe, for one leaf-pair in layout order, what numeric
// conversion (if any) the store sequence must apply: the source's kind (the
// FROM_* bits) and the destination's kind (the TO_* bits). Exactly one
// FROM_* bit is set when the source is int or float; char sources set
// neither, since a loaded char value is already represented as a zero-
// extended int32 on the operand stack and needs no FLOAT2INT/INT2FLOAT
// conversion on its own account. Exactly one TO_* bit is always set.
type CastMask uint8

const (
	FromInt   CastMask = 1
	FromFloat CastMask = 2
	ToInt     CastMask = 4
	ToFloat   CastMask = 8
	ToChar    CastMask = 16
)

// NeedsFloatToInt reports whether the store sequence must apply FLOAT2INT
// for this leaf pair.
func (m CastMask) NeedsFloatToInt() bool { return m&FromFloat != 0 && m&ToInt != 0 }

// NeedsIntToFloat reports whether the store sequence must apply INT2FLOAT
// for this leaf pair.
func (m CastMask) NeedsIntToFloat() bool { return m&FromInt != 0 && m&ToFloat != 0 }

// StoresByte reports whether the destination slot is 1 byte (STB*) rather
// than 4 bytes (STC*).
func (m CastMask) StoresByte() bool { return m&ToChar != 0 }

func fromBit(src Tag) CastMask {
	switch src {
	case TagInt:
		return FromInt
	case TagFloat:
		return FromFloat
	default:
		return 0
	}
}

func toBit(dst Tag) CastMask {
	switch dst {
	case TagInt:
		return ToInt
	case TagFloat:
		return ToFloat
	case TagChar:
		return ToChar
	default:
		return 0
	}
}

// Typed is implemented by both *Static and *Inferred: anything with a
// flattenable layout.
type Typed interface {
	Layout() []Tag
}

// Compatible checks assignment compatibility between a destination Static
// type and a source that is either a *Static or an *Inferred type.
// Compatibility requires identical branching shape (the two type trees
// decompose into the same number of leaves in the same nesting structure)
// and, for each corresponding leaf pair, an allowed numeric conversion:
// any of int, float, char to any other, except float->char, which is
// always rejected. On success it returns one CastMask per leaf pair, in
// layout order.
func Compatible(dst *Static, src Typed) (bool, []CastMask, error) {
	var shapeErr error
	var masks []CastMask

	switch s := src.(type) {
	case *Static:
		shapeErr = compatibleStatic(dst, s, &masks)
	case *Inferred:
		shapeErr = compatibleInferred(dst, s, &masks)
	default:
		return false, nil, fmt.Errorf("layout: unsupported source type %T", src)
	}
	if shapeErr != nil {
		return false, nil, shapeErr
	}
	return true, masks, nil
}

func compatibleStatic(dst, src *Static, masks *[]CastMask) error {
	if dst.isLeaf || src.isLeaf {
		if !dst.isLeaf || !src.isLeaf {
			return fmt.Errorf("layout: shape mismatch: %s is not compatible with %s", src.Name, dst.Name)
		}
		return appendLeafMask(dst.leaf, src.leaf, masks)
	}
	if len(dst.Members) != len(src.Members) {
		return fmt.Errorf("layout: shape mismatch: %s has %d members, %s has %d", dst.Name, len(dst.Members), src.Name, len(src.Members))
	}
	for i := range dst.Members {
		if err := compatibleStatic(dst.Members[i].Type, src.Members[i].Type, masks); err != nil {
			return err
		}
	}
	return nil
}

func compatibleInferred(dst *Static, src *Inferred, masks *[]CastMask) error {
	if src.Static != nil {
		return compatibleStatic(dst, src.Static, masks)
	}
	if dst.isLeaf {
		return fmt.Errorf("layout: shape mismatch: compound initializer is not compatible with leaf type %s", dst.Name)
	}
	if len(dst.Members) != len(src.Components) {
		return fmt.Errorf("layout: shape mismatch: %s has %d members, initializer has %d components", dst.Name, len(dst.Members), len(src.Components))
	}
	for i := range dst.Members {
		if err := compatibleInferred(dst.Members[i].Type, src.Components[i], masks); err != nil {
			return err
		}
	}
	return nil
}

func appendLeafMask(dst, src Tag, masks *[]CastMask) error {
	if src == TagFloat && dst == TagChar {
		return fmt.Errorf("layout: disallowed cast: float to char")
	}
	*masks = append(*masks, fromBit(src)|toBit(dst))
	return nil
}
