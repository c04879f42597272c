package metadata

import "fmt"

// MinimalOverlap returns the dependent properties of a foreign key that are
// not shared with any other foreign key, paired with the principal key
// properties at the same positions. containing reports how many foreign keys
// include a dependent property.
//
// Single-property keys, keys without shared properties, and keys whose
// properties are all shared are returned unchanged, backing arrays included.
// Otherwise the result is a fresh pair of slices and the inputs are left
// untouched.
//
// dependent and principal must have the same length, and dependent must not
// repeat a property; MinimalOverlap panics on repeated dependent properties.
func MinimalOverlap[P comparable](dependent, principal []P, containing func(P) int) (fk, pk []P) {
	if len(dependent) == 1 {
		return dependent, principal
	}
	seen := make(map[P]struct{}, len(dependent))
	for _, p := range dependent {
		if _, ok := seen[p]; ok {
			panic(fmt.Sprintf("metadata: dependent property %v repeated in foreign key", p))
		}
		seen[p] = struct{}{}
	}
	fk, pk = dependent, principal
	copied := false
	for i, p := range dependent {
		if containing(p) > 1 {
			if !copied {
				fk = append(make([]P, 0, len(dependent)-1), dependent[:i]...)
				pk = append(make([]P, 0, len(principal)-1), principal[:i]...)
				copied = true
			}
			continue
		}
		if copied {
			fk = append(fk, p)
			pk = append(pk, principal[i])
		}
	}
	if len(fk) == 0 {
		return dependent, principal
	}
	return fk, pk
}

// MinimalOverlap returns the dependent properties of fk that no other
// foreign key uses, and the principal key properties paired with them.
// See the package-level MinimalOverlap for the exact rules.
func (fk *ForeignKey) MinimalOverlap() (dependent, principal []*Property) {
	return MinimalOverlap(fk.Properties(), fk.PrincipalKeyProperties(), (*Property).ContainingForeignKeyCount)
}
