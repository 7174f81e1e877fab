package introspect

import (
	"fmt"
	"strings"
)

// Cap is a capability-like struct worth a manual look: its name ends in
// "Cap" and it carries more than one field.
type Cap struct {
	Module string
	Name   string
	Fields int
	// Qualified is address::module::Name.
	Qualified string
}

func (c Cap) String() string {
	return fmt.Sprintf("%s (n_fields: %d)", c.Qualified, c.Fields)
}

// InterestingCaps lists the interesting caps declared in view.
func InterestingCaps(view ModuleView) []Cap {
	self := view.SelfHandle()
	prefix := view.AddressAt(self.Address).String() + "::" + view.IdentifierAt(self.Name) + "::"

	var caps []Cap
	for _, def := range view.StructDefs() {
		if def.Native || len(def.Fields) <= 1 {
			continue
		}
		name := view.IdentifierAt(view.DatatypeHandleAt(def.Handle).Name)
		if !strings.HasSuffix(name, "Cap") {
			continue
		}
		caps = append(caps, Cap{
			Module:    view.IdentifierAt(self.Name),
			Name:      name,
			Fields:    len(def.Fields),
			Qualified: prefix + name,
		})
	}
	return caps
}

// InterestingCaps lists the interesting caps across all modules, in module order.
func (a *Analysis) InterestingCaps() []Cap {
	var caps []Cap
	for _, m := range a.Modules {
		caps = append(caps, InterestingCaps(m.Module)...)
	}
	return caps
}
