package bytecode

import "fmt"

// DebugInfo is the optional DEBUG section: source file names, function
// names, lexical items, a code-position-to-item map, a static type table,
// a code-position-to-scope map, and per-scope variable tables. None of
// this is needed to execute a program; it exists to support source-level
// tooling (disassembly annotation, breakpoints by source location,
// variable inspection).
type DebugInfo struct {
	Files     []string
	Functions []DebugFunction
	Items     []ItemInfo
	SourceMap []CodeMapEntry
	Types     []TypeInfo
	ScopeMap  []CodeMapEntry
	Scopes    []ScopeInfo
}

// DebugFunction names one function and references the lexical item that
// represents its declaration.
type DebugFunction struct {
	Name   string
	ItemID uint32
}

// ItemInfo locates one syntactic element in its source file.
type ItemInfo struct {
	FileID                            uint32
	FirstLine, FirstCol, LastLine, LastCol uint32
}

// CodeMapEntry associates a code position with an id (an item or scope):
// for a pair (Pos, ID), the code starting at Pos up to the next entry's Pos
// was generated from the entity ID.
type CodeMapEntry struct {
	Pos uint32
	ID  int32
}

// TypeInfo names a static type and its member names plus indices into the
// Types table for member types.
type TypeInfo struct {
	Name    string
	Members []TypeMember
}

// TypeMember names one member and the index of its type in the enclosing
// Types table.
type TypeMember struct {
	Name      string
	TypeIndex uint32
}

// ScopeInfo describes one lexical scope: its parent scope index and the
// variables declared directly within it.
type ScopeInfo struct {
	Parent uint32
	Vars   []VariableInfo
}

// VariableInfo describes one variable: its name, the index of its type in
// the debug Types table, its dimensionality, the code position where its
// initializer starts, and its address in static memory.
type VariableInfo struct {
	Name      string
	Type      uint32
	NumDim    uint32
	FromCode  uint32
	Addr      uint32
}

func (r *byteReader) cstring() (string, error) {
	start := r.pos
	for r.pos < len(r.data) {
		if r.data[r.pos] == 0 {
			s := string(r.data[start:r.pos])
			r.pos++
			return s, nil
		}
		r.pos++
	}
	return "", fmt.Errorf("%w: unterminated string starting at offset %d", ErrMalformedBinary, start)
}

func parseDebugInfo(r *byteReader) (*DebugInfo, error) {
	var d DebugInfo

	nFiles, err := r.u32()
	if err != nil {
		return nil, err
	}
	d.Files = make([]string, nFiles)
	for i := range d.Files {
		s, err := r.cstring()
		if err != nil {
			return nil, err
		}
		d.Files[i] = s
	}

	nFn, err := r.u32()
	if err != nil {
		return nil, err
	}
	d.Functions = make([]DebugFunction, nFn)
	for i := range d.Functions {
		itemID, err := r.u32()
		if err != nil {
			return nil, err
		}
		name, err := r.cstring()
		if err != nil {
			return nil, err
		}
		d.Functions[i] = DebugFunction{Name: name, ItemID: itemID}
	}

	nItems, err := r.u32()
	if err != nil {
		return nil, err
	}
	d.Items = make([]ItemInfo, nItems)
	for i := range d.Items {
		var it ItemInfo
		for _, field := range []*uint32{&it.FileID, &it.FirstLine, &it.FirstCol, &it.LastLine, &it.LastCol} {
			v, err := r.u32()
			if err != nil {
				return nil, err
			}
			*field = v
		}
		d.Items[i] = it
	}

	sm, err := parseCodeMap(r)
	if err != nil {
		return nil, err
	}
	d.SourceMap = sm

	nTypes, err := r.u32()
	if err != nil {
		return nil, err
	}
	d.Types = make([]TypeInfo, nTypes)
	for i := range d.Types {
		name, err := r.cstring()
		if err != nil {
			return nil, err
		}
		nMembers, err := r.u32()
		if err != nil {
			return nil, err
		}
		members := make([]TypeMember, nMembers)
		for j := range members {
			mname, err := r.cstring()
			if err != nil {
				return nil, err
			}
			idx, err := r.u32()
			if err != nil {
				return nil, err
			}
			members[j] = TypeMember{Name: mname, TypeIndex: idx}
		}
		d.Types[i] = TypeInfo{Name: name, Members: members}
	}

	scm, err := parseCodeMap(r)
	if err != nil {
		return nil, err
	}
	d.ScopeMap = scm

	nScopes, err := r.u32()
	if err != nil {
		return nil, err
	}
	d.Scopes = make([]ScopeInfo, nScopes)
	for i := range d.Scopes {
		parent, err := r.u32()
		if err != nil {
			return nil, err
		}
		nVars, err := r.u32()
		if err != nil {
			return nil, err
		}
		vars := make([]VariableInfo, nVars)
		for j := range vars {
			name, err := r.cstring()
			if err != nil {
				return nil, err
			}
			typ, err := r.u32()
			if err != nil {
				return nil, err
			}
			numDim, err := r.u32()
			if err != nil {
				return nil, err
			}
			fromCode, err := r.u32()
			if err != nil {
				return nil, err
			}
			addr, err := r.u32()
			if err != nil {
				return nil, err
			}
			vars[j] = VariableInfo{Name: name, Type: typ, NumDim: numDim, FromCode: fromCode, Addr: addr}
		}
		d.Scopes[i] = ScopeInfo{Parent: parent, Vars: vars}
	}

	return &d, nil
}

func parseCodeMap(r *byteReader) ([]CodeMapEntry, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]CodeMapEntry, n)
	for i := range out {
		pos, err := r.u32()
		if err != nil {
			return nil, err
		}
		id, err := r.i32()
		if err != nil {
			return nil, err
		}
		out[i] = CodeMapEntry{Pos: pos, ID: id}
	}
	return out, nil
}

func (w *byteWriter) cstring(s string) {
	w.bytes([]byte(s))
	w.u8(0)
}

func emitDebugInfo(w *byteWriter, d *DebugInfo) {
	w.u32(uint32(len(d.Files)))
	for _, f := range d.Files {
		w.cstring(f)
	}

	w.u32(uint32(len(d.Functions)))
	for _, fn := range d.Functions {
		w.u32(fn.ItemID)
		w.cstring(fn.Name)
	}

	w.u32(uint32(len(d.Items)))
	for _, it := range d.Items {
		w.u32(it.FileID)
		w.u32(it.FirstLine)
		w.u32(it.FirstCol)
		w.u32(it.LastLine)
		w.u32(it.LastCol)
	}

	emitCodeMap(w, d.SourceMap)

	w.u32(uint32(len(d.Types)))
	for _, t := range d.Types {
		w.cstring(t.Name)
		w.u32(uint32(len(t.Members)))
		for _, m := range t.Members {
			w.cstring(m.Name)
			w.u32(m.TypeIndex)
		}
	}

	emitCodeMap(w, d.ScopeMap)

	w.u32(uint32(len(d.Scopes)))
	for _, s := range d.Scopes {
		w.u32(s.Parent)
		w.u32(uint32(len(s.Vars)))
		for _, v := range s.Vars {
			w.cstring(v.Name)
			w.u32(v.Type)
			w.u32(v.NumDim)
			w.u32(v.FromCode)
			w.u32(v.Addr)
		}
	}
}

func emitCodeMap(w *byteWriter, m []CodeMapEntry) {
	w.u32(uint32(len(m)))
	for _, e := range m {
		w.u32(e.Pos)
		w.i32(e.ID)
	}
}

// Find returns the index of the CodeMapEntry whose Pos is the greatest
// value <= pos, or -1 if pos precedes every entry. Entries are assumed
// sorted by Pos, mirroring the original code_map_find's binary-search
// contract.
func (m codeMap) Find(pos uint32) int {
	best := -1
	for i, e := range m {
		if e.Pos <= pos {
			best = i
		} else {
			break
		}
	}
	return best
}

type codeMap []CodeMapEntry
