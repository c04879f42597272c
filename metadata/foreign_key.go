package metadata

import (
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/relmeta"
)

type (
	// ForeignKey is a relationship between the dependent properties of one
	// entity type (the declaring type) and a key of another (the principal).
	// Dependent properties and principal key properties pair up by position.
	ForeignKey struct {
		name         string
		declaring    *EntityType
		principal    *EntityType
		properties   []*Property
		principalKey *Key
		// navigations; either may be nil.
		toPrincipal *Navigation
		toDependent *Navigation
		unique      bool
		required    bool
		ownership   bool
		onDelete    DeleteBehavior
	}

	// Navigation is a named reference from one end of a foreign key to the
	// other. A navigation on the dependent points to the principal; one on
	// the principal points to the dependent(s).
	Navigation struct {
		name        string
		fk          *ForeignKey
		onDependent bool
	}
)

// Name returns the constraint name of the foreign key.
func (fk *ForeignKey) Name() string { return fk.name }

// Properties returns the dependent properties in order.
func (fk *ForeignKey) Properties() []*Property { return slices.Clip(fk.properties) }

// PrincipalKey returns the key of the principal entity type this foreign key targets.
func (fk *ForeignKey) PrincipalKey() *Key { return fk.principalKey }

// PrincipalKeyProperties is a shorthand for PrincipalKey().Properties().
func (fk *ForeignKey) PrincipalKeyProperties() []*Property {
	return slices.Clip(fk.principalKey.properties)
}

// DeclaringEntityType returns the dependent entity type.
func (fk *ForeignKey) DeclaringEntityType() *EntityType { return fk.declaring }

// PrincipalEntityType returns the principal entity type.
func (fk *ForeignKey) PrincipalEntityType() *EntityType { return fk.principal }

// DependentToPrincipal returns the navigation on the dependent, or nil.
func (fk *ForeignKey) DependentToPrincipal() *Navigation { return fk.toPrincipal }

// PrincipalToDependent returns the navigation on the principal, or nil.
func (fk *ForeignKey) PrincipalToDependent() *Navigation { return fk.toDependent }

// IsUnique reports if at most one dependent can reference a principal.
func (fk *ForeignKey) IsUnique() bool { return fk.unique }

// IsRequired reports if a dependent must always reference a principal.
func (fk *ForeignKey) IsRequired() bool { return fk.required }

// IsOwnership reports if the principal owns its dependents.
func (fk *ForeignKey) IsOwnership() bool { return fk.ownership }

// DeleteBehavior returns the delete behavior of the relationship.
func (fk *ForeignKey) DeleteBehavior() DeleteBehavior { return fk.onDelete }

// IsSelfReferencing reports if the dependent and principal are the same entity type.
func (fk *ForeignKey) IsSelfReferencing() bool { return fk.declaring == fk.principal }

// Navigation returns the navigation that points to the principal if
// pointsToPrincipal is set, or the one that points to the dependent.
func (fk *ForeignKey) Navigation(pointsToPrincipal bool) *Navigation {
	if pointsToPrincipal {
		return fk.toPrincipal
	}
	return fk.toDependent
}

// NavigationsFrom returns the navigations of this relationship that are
// declared on the given entity type. A self-referencing relationship
// returns both of its navigations.
func (fk *ForeignKey) NavigationsFrom(et *EntityType) ([]*Navigation, error) {
	if err := fk.checkEnd(et); err != nil {
		return nil, err
	}
	var navs []*Navigation
	if et == fk.declaring && fk.toPrincipal != nil {
		navs = append(navs, fk.toPrincipal)
	}
	if et == fk.principal && fk.toDependent != nil {
		navs = append(navs, fk.toDependent)
	}
	return navs, nil
}

// NavigationsTo returns the navigations of this relationship that target
// the given entity type.
func (fk *ForeignKey) NavigationsTo(et *EntityType) ([]*Navigation, error) {
	if err := fk.checkEnd(et); err != nil {
		return nil, err
	}
	var navs []*Navigation
	if et == fk.principal && fk.toPrincipal != nil {
		navs = append(navs, fk.toPrincipal)
	}
	if et == fk.declaring && fk.toDependent != nil {
		navs = append(navs, fk.toDependent)
	}
	return navs, nil
}

// RelatedEntityType returns the entity type at the other end of the
// relationship from the given one.
func (fk *ForeignKey) RelatedEntityType(et *EntityType) (*EntityType, error) {
	if err := fk.checkEnd(et); err != nil {
		return nil, err
	}
	if et == fk.declaring {
		return fk.principal, nil
	}
	return fk.declaring, nil
}

func (fk *ForeignKey) checkEnd(et *EntityType) error {
	if et == fk.declaring || et == fk.principal {
		return nil
	}
	name := "<nil>"
	if et != nil {
		name = et.name
	}
	return relmeta.NewForeignKeyError(
		fk.declaring.name, PropertyNames(fk.properties), fk.principal.name,
		fmt.Sprintf("entity type %s", name), relmeta.ErrEntityTypeNotInRelationship,
	)
}

// DependentKeyValueFactory returns a factory that builds key values from the
// dependent properties of a dependent instance. The values compare equal to
// the ones built by PrincipalKey().PrincipalKeyValueFactory() for the
// referenced principal.
func (fk *ForeignKey) DependentKeyValueFactory() *KeyValueFactory {
	return newKeyValueFactory(fk.properties)
}

// String returns a one-line description of the foreign key.
func (fk *ForeignKey) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s -> %s %s", fk.declaring.name, propertyList(fk.properties),
		fk.principal.name, propertyList(fk.principalKey.properties))
	if fk.unique {
		b.WriteString(" Unique")
	}
	if fk.required {
		b.WriteString(" Required")
	}
	if fk.ownership {
		b.WriteString(" Ownership")
	}
	b.WriteString(" " + fk.onDelete.String())
	if fk.toPrincipal != nil {
		b.WriteString(" ToPrincipal: " + fk.toPrincipal.name)
	}
	if fk.toDependent != nil {
		b.WriteString(" ToDependent: " + fk.toDependent.name)
	}
	return b.String()
}

// Name returns the navigation name.
func (n *Navigation) Name() string { return n.name }

// ForeignKey returns the foreign key the navigation belongs to.
func (n *Navigation) ForeignKey() *ForeignKey { return n.fk }

// IsOnDependent reports if the navigation is declared on the dependent
// entity type, i.e. it points to the principal.
func (n *Navigation) IsOnDependent() bool { return n.onDependent }

// DeclaringEntityType returns the entity type the navigation is declared on.
func (n *Navigation) DeclaringEntityType() *EntityType {
	if n.onDependent {
		return n.fk.declaring
	}
	return n.fk.principal
}

// TargetEntityType returns the entity type the navigation points to.
func (n *Navigation) TargetEntityType() *EntityType {
	if n.onDependent {
		return n.fk.principal
	}
	return n.fk.declaring
}

// IsCollection reports if the navigation holds many instances. Only
// principal-side navigations of non-unique foreign keys are collections.
func (n *Navigation) IsCollection() bool {
	return !n.onDependent && !n.fk.unique
}

// Inverse returns the navigation at the other end of the relationship, or nil.
func (n *Navigation) Inverse() *Navigation {
	if n.onDependent {
		return n.fk.toDependent
	}
	return n.fk.toPrincipal
}

// String returns "Owner.name (Target)" or "Owner.name (Target[])" for collections.
func (n *Navigation) String() string {
	target := n.TargetEntityType().name
	if n.IsCollection() {
		target += "[]"
	}
	return fmt.Sprintf("%s.%s (%s)", n.DeclaringEntityType().name, n.name, target)
}
