package bytecode

import "gopkg.in/yaml.v3"

// debugYAML mirrors DebugInfo's shape with yaml tags, so the dump reads as
// plain structured text rather than Go field names.
type debugYAML struct {
	Files     []string      `yaml:"files"`
	Functions []debugFnYAML `yaml:"functions"`
	Items     []itemYAML    `yaml:"items"`
	Types     []typeYAML    `yaml:"types"`
	Scopes    []scopeYAML   `yaml:"scopes"`
}

type debugFnYAML struct {
	Name   string `yaml:"name"`
	ItemID uint32 `yaml:"item"`
}

type itemYAML struct {
	File      uint32 `yaml:"file"`
	FirstLine uint32 `yaml:"first_line"`
	FirstCol  uint32 `yaml:"first_col"`
	LastLine  uint32 `yaml:"last_line"`
	LastCol   uint32 `yaml:"last_col"`
}

type typeYAML struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members,omitempty"`
}

type scopeYAML struct {
	Parent uint32        `yaml:"parent"`
	Vars   []varInfoYAML `yaml:"vars,omitempty"`
}

type varInfoYAML struct {
	Name   string `yaml:"name"`
	Type   uint32 `yaml:"type"`
	NumDim uint32 `yaml:"numdim"`
	Addr   uint32 `yaml:"addr"`
}

// DumpDebugInfo renders d as YAML, for the `wtvm dump --debug` command: a
// structured, greppable alternative to the original's ad hoc printf dump.
func DumpDebugInfo(d *DebugInfo) ([]byte, error) {
	if d == nil {
		return yaml.Marshal(map[string]any{"debug": nil})
	}

	out := debugYAML{Files: d.Files}
	for _, fn := range d.Functions {
		out.Functions = append(out.Functions, debugFnYAML{Name: fn.Name, ItemID: fn.ItemID})
	}
	for _, it := range d.Items {
		out.Items = append(out.Items, itemYAML{
			File:      it.FileID,
			FirstLine: it.FirstLine,
			FirstCol:  it.FirstCol,
			LastLine:  it.LastLine,
			LastCol:   it.LastCol,
		})
	}
	for _, ty := range d.Types {
		names := make([]string, len(ty.Members))
		for i, m := range ty.Members {
			names[i] = m.Name
		}
		out.Types = append(out.Types, typeYAML{Name: ty.Name, Members: names})
	}
	for _, sc := range d.Scopes {
		var vars []varInfoYAML
		for _, v := range sc.Vars {
			vars = append(vars, varInfoYAML{Name: v.Name, Type: v.Type, NumDim: v.NumDim, Addr: v.Addr})
		}
		out.Scopes = append(out.Scopes, scopeYAML{Parent: sc.Parent, Vars: vars})
	}
	return yaml.Marshal(out)
}
