package ir

import (
	"maps"
	"slices"
)

// Interface is a compiled canister interface: named types, the service
// methods and, when declared, the constructor argument types.
type Interface struct {
	Env     TypeEnv
	Methods map[string]FuncType
	Init    []Type
}

// NewInterface returns an empty interface.
func NewInterface() *Interface {
	return &Interface{Env: TypeEnv{}, Methods: map[string]FuncType{}}
}

// Method looks up a method signature.
func (i *Interface) Method(name string) (FuncType, bool) {
	f, ok := i.Methods[name]
	return f, ok
}

// MethodNames returns method names in sorted order.
func (i *Interface) MethodNames() []string {
	return slices.Sorted(maps.Keys(i.Methods))
}

// ServiceType returns the service type of the interface.
func (i *Interface) ServiceType() Type {
	t := Type{Kind: TypeService}
	for _, name := range i.MethodNames() {
		t.Methods = append(t.Methods, MethodType{Name: name, Func: i.Methods[name]})
	}
	return t
}
