// Package layout implements the static/inferred type model that backs the
// instruction set: flattening types to primitive-tag layouts, computing
// member offsets and total sizes, and checking assignment compatibility
// between a destination static type and a source static or inferred type.
package layout

import "fmt"

// Tag identifies a primitive storage kind, matching the wire encoding used
// in the INPUT/OUTPUT sections and in the SORT instruction's type operand
// (TYPE_INT=0, TYPE_FLOAT=1, TYPE_CHAR=2).
type Tag uint8

const (
	TagInt Tag = iota
	TagFloat
	TagChar
)

func (t Tag) String() string {
	switch t {
	case TagInt:
		return "int"
	case TagFloat:
		return "float"
	case TagChar:
		return "char"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Size returns the storage size in bytes of a single primitive of this tag.
func (t Tag) Size() uint32 {
	switch t {
	case TagInt, TagFloat:
		return 4
	case TagChar:
		return 1
	default:
		return 0
	}
}

// Member is one named field of a Static type, with its byte offset computed
// relative to the start of the parent.
type Member struct {
	Name   string
	Type   *Static
	Offset uint32
}

// Static is a named type with a total byte size and an ordered member list.
// A Static with no members is either a leaf (int, float, char) or void.
type Static struct {
	Name    string
	Size    uint32
	Members []Member
	leaf    Tag
	isLeaf  bool
}

// Basic leaf static types. int and float are 4 bytes, char is 1 byte, void
// is 0 bytes and carries no layout (only valid as a function return type).
var (
	Int   = &Static{Name: "int", Size: 4, leaf: TagInt, isLeaf: true}
	Float = &Static{Name: "float", Size: 4, leaf: TagFloat, isLeaf: true}
	Char  = &Static{Name: "char", Size: 1, leaf: TagChar, isLeaf: true}
	Void  = &Static{Name: "void", Size: 0}
)

// NewStatic builds a named compound static type from an ordered member
// list, computing each member's offset and the type's total size. Member
// types must already be fully constructed (offsets/sizes resolved), so
// nested types are built bottom-up.
func NewStatic(name string, members []Member) *Static {
	st := &Static{Name: name}
	var off uint32
	for i := range members {
		members[i].Offset = off
		off += members[i].Type.Size
	}
	st.Members = members
	st.Size = off
	return st
}

// Basic reports the leaf kind of t, failing if t is not one of int, float
// or char.
func Basic(t *Static) (Tag, error) {
	if !t.isLeaf {
		return 0, fmt.Errorf("type %s is not a basic type", t.Name)
	}
	return t.leaf, nil
}

// IsLeaf reports whether t is one of the three primitive leaf kinds.
func (t *Static) IsLeaf() bool { return t.isLeaf }

// Layout flattens t to its ordered sequence of primitive tags. The
// serialized storage of any value of type t occupies exactly
// sum(tag.Size()) bytes laid out in this order.
func (t *Static) Layout() []Tag {
	if t.isLeaf {
		return []Tag{t.leaf}
	}
	if len(t.Members) == 0 {
		// void, or an empty compound: no storage.
		return nil
	}
	var out []Tag
	for _, m := range t.Members {
		out = append(out, m.Type.Layout()...)
	}
	return out
}

// LayoutSize returns the total byte size implied by t's layout, which must
// equal t.Size for any well-formed type (this is the round-trip invariant
// of §8.1).
func LayoutSize(t *Static) uint32 {
	var sz uint32
	for _, tag := range t.Layout() {
		sz += tag.Size()
	}
	return sz
}

// Inferred is either a terminal Static type or a compound ordered list of
// component Inferred types, used while type-checking initializers and
// parameter tuples before they are matched against a declared Static type.
type Inferred struct {
	Static     *Static
	Components []*Inferred
}

// FromStatic wraps a Static type as a terminal Inferred type.
func FromStatic(t *Static) *Inferred { return &Inferred{Static: t} }

// FromComponents builds a compound Inferred type from ordered components.
func FromComponents(components ...*Inferred) *Inferred {
	return &Inferred{Components: components}
}

// Layout flattens an Inferred type: the concatenation of its component
// layouts, or the wrapped Static's layout if terminal.
func (it *Inferred) Layout() []Tag {
	if it.Static != nil {
		return it.Static.Layout()
	}
	var out []Tag
	for _, c := range it.Components {
		out = append(out, c.Layout()...)
	}
	return out
}
