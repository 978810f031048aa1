package registry

import (
	"maps"
	"slices"
)

// Affiliations lists the entities an address owns and controls.
// Field names are part of the external ACL contract.
type Affiliations struct {
	Owned      []string `json:"Owned"`
	Controlled []string `json:"Controlled"`
}

// ACLPatch maps every address whose membership changed to its current
// affiliations. Addresses that lost everything map to empty lists so the
// consumer can clear them.
type ACLPatch map[string]Affiliations

// Empty reports whether the patch carries no changes.
func (p ACLPatch) Empty() bool { return len(p) == 0 }

type entitySet map[string]struct{}

// aclIndex is the derived address -> entities cache over owner and
// controllers. Addresses with no entities are pruned.
type aclIndex struct {
	owned      map[string]entitySet
	controlled map[string]entitySet
}

func newACLIndex() *aclIndex {
	return &aclIndex{
		owned:      make(map[string]entitySet),
		controlled: make(map[string]entitySet),
	}
}

func (x *aclIndex) add(rec *EntityRecord) {
	if owner := rec.OwnerAddress(); owner != "" {
		addTo(x.owned, owner, rec.EntityID)
	}
	for _, c := range rec.Controllers {
		addTo(x.controlled, c, rec.EntityID)
	}
}

func (x *aclIndex) remove(rec *EntityRecord) {
	if owner := rec.OwnerAddress(); owner != "" {
		removeFrom(x.owned, owner, rec.EntityID)
	}
	for _, c := range rec.Controllers {
		removeFrom(x.controlled, c, rec.EntityID)
	}
}

// replace moves an entity from its old to its new addresses and returns the
// patch for the addresses whose membership changed.
func (x *aclIndex) replace(old, updated *EntityRecord) ACLPatch {
	affected := affectedAddresses(old, updated)
	if len(affected) == 0 {
		return nil
	}
	if old != nil {
		x.remove(old)
	}
	if updated != nil {
		x.add(updated)
	}
	return x.patch(affected)
}

func (x *aclIndex) affiliations(address string) Affiliations {
	return Affiliations{
		Owned:      sortedMembers(x.owned[address]),
		Controlled: sortedMembers(x.controlled[address]),
	}
}

func (x *aclIndex) patch(addresses []string) ACLPatch {
	p := make(ACLPatch, len(addresses))
	for _, a := range addresses {
		p[a] = x.affiliations(a)
	}
	return p
}

func (x *aclIndex) snapshot() map[string]Affiliations {
	addrs := make(map[string]struct{}, len(x.owned)+len(x.controlled))
	for a := range x.owned {
		addrs[a] = struct{}{}
	}
	for a := range x.controlled {
		addrs[a] = struct{}{}
	}
	out := make(map[string]Affiliations, len(addrs))
	for a := range addrs {
		out[a] = x.affiliations(a)
	}
	return out
}

// affectedAddresses returns the sorted addresses whose owned or controlled
// membership differs between old and updated. Either side may be nil.
func affectedAddresses(old, updated *EntityRecord) []string {
	set := make(map[string]struct{})
	oldOwner, newOwner := old.OwnerAddress(), updated.OwnerAddress()
	if oldOwner != newOwner {
		if oldOwner != "" {
			set[oldOwner] = struct{}{}
		}
		if newOwner != "" {
			set[newOwner] = struct{}{}
		}
	}
	var oldCtrl, newCtrl []string
	if old != nil {
		oldCtrl = old.Controllers
	}
	if updated != nil {
		newCtrl = updated.Controllers
	}
	for _, c := range oldCtrl {
		if !slices.Contains(newCtrl, c) {
			set[c] = struct{}{}
		}
	}
	for _, c := range newCtrl {
		if !slices.Contains(oldCtrl, c) {
			set[c] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

func addTo(index map[string]entitySet, address, entityID string) {
	set, ok := index[address]
	if !ok {
		set = make(entitySet)
		index[address] = set
	}
	set[entityID] = struct{}{}
}

func removeFrom(index map[string]entitySet, address, entityID string) {
	set, ok := index[address]
	if !ok {
		return
	}
	delete(set, entityID)
	if len(set) == 0 {
		delete(index, address)
	}
}

func sortedMembers(set entitySet) []string {
	if len(set) == 0 {
		return []string{}
	}
	return slices.Sorted(maps.Keys(set))
}
