// Package metadata is the read-only relational model of entity types,
// properties, keys, foreign keys and navigations.
//
// A model is assembled with a Builder and frozen by Build:
//
//	b := metadata.NewBuilder()
//	b.Entity("User").
//		Property("id", metadata.TypeInt64).
//		PrimaryKey("id")
//	b.Entity("Pet").
//		Property("id", metadata.TypeInt64).
//		Property("owner_id", metadata.TypeInt64, metadata.Nullable()).
//		PrimaryKey("id")
//	b.ForeignKey("Pet", []string{"owner_id"}, "User",
//		metadata.DependentToPrincipal("owner"),
//		metadata.PrincipalToDependent("pets"),
//	)
//	m, err := b.Build()
//
// Foreign keys that share dependent properties (typically a tenant column in
// composite keys) can be narrowed to the properties that belong to them alone
// with ForeignKey.MinimalOverlap.
package metadata
