package permissions

import "encoding/json"

// Action is a permission-checked operation on a collection or record
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionList   Action = "list"
)

// PermissionSet is the effective decision for every action at collection scope
type PermissionSet struct {
	Create bool `json:"create"`
	Read   bool `json:"read"`
	Update bool `json:"update"`
	Delete bool `json:"delete"`
	List   bool `json:"list"`
}

// None is the starting point of resolution: everything denied
func None() PermissionSet {
	return PermissionSet{}
}

// All is the admin bypass: everything allowed
func All() PermissionSet {
	return PermissionSet{Create: true, Read: true, Update: true, Delete: true, List: true}
}

// Allows reports the flag for one action
func (p PermissionSet) Allows(a Action) bool {
	switch a {
	case ActionCreate:
		return p.Create
	case ActionRead:
		return p.Read
	case ActionUpdate:
		return p.Update
	case ActionDelete:
		return p.Delete
	case ActionList:
		return p.List
	}
	return false
}

// Any reports whether at least one flag is set
func (p PermissionSet) Any() bool {
	return p.Create || p.Read || p.Update || p.Delete || p.List
}

// Tri is a tagged tri-state permission flag. Overrides merge left-to-right:
// unset falls through to the layer below, true/false replace it.
type Tri uint8

const (
	TriUnset Tri = iota
	TriTrue
	TriFalse
)

// TriFrom converts a nullable database flag into a Tri
func TriFrom(b *bool) Tri {
	if b == nil {
		return TriUnset
	}
	if *b {
		return TriTrue
	}
	return TriFalse
}

// Ptr converts a Tri back to its nullable database representation
func (t Tri) Ptr() *bool {
	switch t {
	case TriTrue:
		v := true
		return &v
	case TriFalse:
		v := false
		return &v
	}
	return nil
}

// Overlay applies the tri-state on top of a base flag
func (t Tri) Overlay(base bool) bool {
	switch t {
	case TriTrue:
		return true
	case TriFalse:
		return false
	}
	return base
}

// MarshalJSON renders unset as null so clients see the tri-state directly
func (t Tri) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Ptr())
}

// UnmarshalJSON accepts null/true/false
func (t *Tri) UnmarshalJSON(data []byte) error {
	var b *bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	*t = TriFrom(b)
	return nil
}

// OverrideSet is a per-flag tri-state overlay at collection scope
type OverrideSet struct {
	Create Tri `json:"create"`
	Read   Tri `json:"read"`
	Update Tri `json:"update"`
	Delete Tri `json:"delete"`
	List   Tri `json:"list"`
}

// Apply overlays every non-unset flag onto the base set
func (o OverrideSet) Apply(base PermissionSet) PermissionSet {
	return PermissionSet{
		Create: o.Create.Overlay(base.Create),
		Read:   o.Read.Overlay(base.Read),
		Update: o.Update.Overlay(base.Update),
		Delete: o.Delete.Overlay(base.Delete),
		List:   o.List.Overlay(base.List),
	}
}

// AnyTrue reports whether any override explicitly grants a flag
func (o OverrideSet) AnyTrue() bool {
	return o.Create == TriTrue || o.Read == TriTrue || o.Update == TriTrue ||
		o.Delete == TriTrue || o.List == TriTrue
}
