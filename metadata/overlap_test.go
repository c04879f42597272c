package metadata

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counts(m map[string]int) func(string) int {
	return func(p string) int {
		if n, ok := m[p]; ok {
			return n
		}
		return 1
	}
}

func TestMinimalOverlap_SingleProperty(t *testing.T) {
	dep, prin := []string{"owner_id"}, []string{"id"}
	fk, pk := MinimalOverlap(dep, prin, counts(map[string]int{"owner_id": 3}))
	require.Equal(t, dep, fk)
	require.Equal(t, prin, pk)
	// Same backing arrays.
	require.Same(t, &dep[0], &fk[0])
	require.Same(t, &prin[0], &pk[0])
}

func TestMinimalOverlap_NoShared(t *testing.T) {
	dep, prin := []string{"a", "b", "c"}, []string{"x", "y", "z"}
	fk, pk := MinimalOverlap(dep, prin, counts(nil))
	require.Equal(t, []string{"a", "b", "c"}, fk)
	require.Equal(t, []string{"x", "y", "z"}, pk)
	require.Same(t, &dep[0], &fk[0])
	require.Same(t, &prin[0], &pk[0])
}

func TestMinimalOverlap_TwoProperties(t *testing.T) {
	tests := []struct {
		name       string
		shared     string
		wantFK     []string
		wantPK     []string
		dependent  []string
		principal  []string
		containing map[string]int
	}{
		{
			name:      "first shared",
			dependent: []string{"tenant_id", "order_id"},
			principal: []string{"tenant_id", "id"},
			wantFK:    []string{"order_id"},
			wantPK:    []string{"id"},
			containing: map[string]int{
				"tenant_id": 2,
			},
		},
		{
			name:      "second shared",
			dependent: []string{"order_id", "tenant_id"},
			principal: []string{"id", "tenant_id"},
			wantFK:    []string{"order_id"},
			wantPK:    []string{"id"},
			containing: map[string]int{
				"tenant_id": 5,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fk, pk := MinimalOverlap(tt.dependent, tt.principal, counts(tt.containing))
			assert.Equal(t, tt.wantFK, fk)
			assert.Equal(t, tt.wantPK, pk)
		})
	}
}

func TestMinimalOverlap_MiddleShared(t *testing.T) {
	dep, prin := []string{"d0", "d1", "d2"}, []string{"p0", "p1", "p2"}
	fk, pk := MinimalOverlap(dep, prin, counts(map[string]int{"d1": 2}))
	require.Equal(t, []string{"d0", "d2"}, fk)
	require.Equal(t, []string{"p0", "p2"}, pk)
}

func TestMinimalOverlap_PairsStayAligned(t *testing.T) {
	// Removing two positions must not shift the principal pairing.
	dep, prin := []string{"d0", "d1", "d2", "d3"}, []string{"p0", "p1", "p2", "p3"}
	fk, pk := MinimalOverlap(dep, prin, counts(map[string]int{"d0": 2, "d2": 2}))
	require.Equal(t, []string{"d1", "d3"}, fk)
	require.Equal(t, []string{"p1", "p3"}, pk)
}

func TestMinimalOverlap_AllShared(t *testing.T) {
	dep, prin := []string{"a", "b"}, []string{"x", "y"}
	fk, pk := MinimalOverlap(dep, prin, counts(map[string]int{"a": 2, "b": 2}))
	require.Equal(t, dep, fk)
	require.Equal(t, prin, pk)
	require.Same(t, &dep[0], &fk[0])
}

func TestMinimalOverlap_Idempotent(t *testing.T) {
	c := counts(map[string]int{"d1": 2})
	dep, prin := []string{"d0", "d1", "d2"}, []string{"p0", "p1", "p2"}
	fk, pk := MinimalOverlap(dep, prin, c)
	fk2, pk2 := MinimalOverlap(fk, pk, c)
	require.Equal(t, fk, fk2)
	require.Equal(t, pk, pk2)
	require.Same(t, &fk[0], &fk2[0])
}

func TestMinimalOverlap_NoMutation(t *testing.T) {
	dep, prin := []string{"d0", "d1", "d2"}, []string{"p0", "p1", "p2"}
	depCopy, prinCopy := slices.Clone(dep), slices.Clone(prin)
	fk, pk := MinimalOverlap(dep, prin, counts(map[string]int{"d0": 2}))
	require.Equal(t, depCopy, dep)
	require.Equal(t, prinCopy, prin)

	// The results are independent of the inputs.
	fk[0], pk[0] = "changed", "changed"
	require.Equal(t, depCopy, dep)
	require.Equal(t, prinCopy, prin)
}

func TestMinimalOverlap_RepeatedDependent(t *testing.T) {
	require.Panics(t, func() {
		MinimalOverlap([]string{"a", "a"}, []string{"x", "y"}, counts(nil))
	})
}

func TestForeignKey_MinimalOverlap(t *testing.T) {
	m := tenantModel(t)

	line := m.FindEntityType("OrderLine")
	require.NotNil(t, line)
	require.Equal(t, 2, line.FindProperty("tenant_id").ContainingForeignKeyCount())
	require.Equal(t, 1, line.FindProperty("order_id").ContainingForeignKeyCount())

	for _, tt := range []struct {
		principal      string
		wantDependent  []string
		wantPrincipals []string
	}{
		{"Order", []string{"order_id"}, []string{"id"}},
		{"Product", []string{"product_id"}, []string{"id"}},
	} {
		var fk *ForeignKey
		for _, f := range line.ForeignKeys() {
			if f.PrincipalEntityType().Name() == tt.principal {
				fk = f
			}
		}
		require.NotNil(t, fk, tt.principal)
		dep, prin := fk.MinimalOverlap()
		require.Equal(t, tt.wantDependent, PropertyNames(dep))
		require.Equal(t, tt.wantPrincipals, PropertyNames(prin))
		require.Equal(t, []string{"tenant_id", PropertyNames(dep)[0]}, PropertyNames(fk.Properties()), "model is not mutated")
		require.Equal(t, tt.principal, prin[0].DeclaringEntityType().Name())
	}

	// Order has a single-column foreign key to Tenant; it is returned as is.
	order := m.FindEntityType("Order")
	fks := order.ForeignKeys()
	require.Len(t, fks, 1)
	dep, prin := fks[0].MinimalOverlap()
	require.Equal(t, []string{"tenant_id"}, PropertyNames(dep))
	require.Equal(t, []string{"id"}, PropertyNames(prin))
}

func TestForeignKey_MinimalOverlapMiddle(t *testing.T) {
	b := NewBuilder()
	b.Entity("Region").Property("id", TypeInt64).PrimaryKey("id")
	b.Entity("Bin").
		Property("tenant_id", TypeInt64).
		Property("region_id", TypeInt64).
		Property("code", TypeString).
		PrimaryKey("tenant_id", "region_id", "code")
	b.Entity("Stock").
		Property("id", TypeInt64).
		Property("tenant_id", TypeInt64).
		Property("region_id", TypeInt64).
		Property("bin_code", TypeString).
		PrimaryKey("id")
	b.ForeignKey("Stock", []string{"tenant_id", "region_id", "bin_code"}, "Bin")
	b.ForeignKey("Stock", []string{"region_id"}, "Region")
	m, err := b.Build()
	require.NoError(t, err)

	fk := m.FindEntityType("Stock").ForeignKeys()[0]
	dep, prin := fk.MinimalOverlap()
	require.Equal(t, []string{"tenant_id", "bin_code"}, PropertyNames(dep))
	require.Equal(t, []string{"tenant_id", "code"}, PropertyNames(prin))
}
