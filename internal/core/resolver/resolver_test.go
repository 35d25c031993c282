package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
)

func variant(id string, available bool, opts ...string) domain.Variant {
	v := domain.Variant{
		ID:               id,
		Title:            id,
		Price:            domain.MustParseMoney("10.00", "USD"),
		AvailableForSale: available,
	}
	for i := 0; i+1 < len(opts); i += 2 {
		v.SelectedOptions = append(v.SelectedOptions, domain.SelectedOption{Name: opts[i], Value: opts[i+1]})
	}
	return v
}

func sizeSnapshot() *domain.CatalogSnapshot {
	return &domain.CatalogSnapshot{
		ProductID: "p-shirt",
		Options:   []domain.OptionDefinition{{Name: "Size", Values: []string{"S", "M", "L"}}},
		Variants: []domain.Variant{
			variant("v-s", true, "Size", "S"),
			variant("v-m", true, "Size", "M"),
			variant("v-l", true, "Size", "L"),
		},
	}
}

// Color x Size where Red/M is sold out and Blue has no L.
func gridSnapshot() *domain.CatalogSnapshot {
	return &domain.CatalogSnapshot{
		ProductID: "p-tee",
		Options: []domain.OptionDefinition{
			{Name: "Color", Values: []string{"Red", "Blue"}},
			{Name: "Size", Values: []string{"S", "M", "L"}},
		},
		Variants: []domain.Variant{
			variant("red-s", true, "Color", "Red", "Size", "S"),
			variant("red-m", false, "Color", "Red", "Size", "M"),
			variant("red-l", true, "Color", "Red", "Size", "L"),
			variant("blue-s", true, "Color", "Blue", "Size", "S"),
			variant("blue-m", true, "Color", "Blue", "Size", "M"),
		},
	}
}

func TestResolve_SingleOption(t *testing.T) {
	snap := sizeSnapshot()
	require.NoError(t, snap.Validate())

	v, err := Resolve(snap, domain.Selection{"Size": "M"})
	require.NoError(t, err)
	assert.Equal(t, "v-m", v.ID)
}

func TestResolve_UndeclaredValue(t *testing.T) {
	_, err := Resolve(sizeSnapshot(), domain.Selection{"Size": "XL"})
	assert.ErrorIs(t, err, domain.ErrMalformedSelection)
}

func TestResolve_UndeclaredOption(t *testing.T) {
	_, err := Resolve(sizeSnapshot(), domain.Selection{"Fit": "Slim"})
	assert.ErrorIs(t, err, domain.ErrMalformedSelection)
}

func TestResolve_PartialSelection(t *testing.T) {
	_, err := Resolve(gridSnapshot(), domain.Selection{"Color": "Red"})
	assert.ErrorIs(t, err, domain.ErrUnresolved)
}

func TestResolve_MissingCombination(t *testing.T) {
	_, err := Resolve(gridSnapshot(), domain.Selection{"Color": "Blue", "Size": "L"})
	assert.ErrorIs(t, err, domain.ErrUnresolved)
}

func TestResolve_UnavailableVariantStillResolves(t *testing.T) {
	v, err := Resolve(gridSnapshot(), domain.Selection{"Color": "Red", "Size": "M"})
	require.NoError(t, err)
	assert.Equal(t, "red-m", v.ID)
	assert.False(t, v.AvailableForSale)
}

func TestResolve_EveryCompleteSelection(t *testing.T) {
	snap := gridSnapshot()
	for _, color := range snap.Options[0].Values {
		for _, size := range snap.Options[1].Values {
			sel := domain.Selection{"Color": color, "Size": size}

			first, err1 := Resolve(snap, sel)
			second, err2 := Resolve(snap, sel)
			assert.Equal(t, first, second, "selection %s", sel.Key())
			assert.Equal(t, err1 == nil, err2 == nil)

			if err1 != nil {
				assert.ErrorIs(t, err1, domain.ErrUnresolved)
				continue
			}
			assert.Equal(t, sel, first.Selection())
		}
	}
}

func TestResolve_DuplicateCombinationIsUnresolved(t *testing.T) {
	snap := sizeSnapshot()
	snap.Variants = append(snap.Variants, variant("v-m2", true, "Size", "M"))

	_, err := Resolve(snap, domain.Selection{"Size": "M"})
	assert.ErrorIs(t, err, domain.ErrUnresolved)
	assert.ErrorIs(t, snap.Validate(), domain.ErrInvalidSnapshot)
}

func TestResolve_NoOptions(t *testing.T) {
	snap := &domain.CatalogSnapshot{
		ProductID: "p-mug",
		Variants:  []domain.Variant{variant("v-default", true)},
	}
	v, err := Resolve(snap, domain.Selection{})
	require.NoError(t, err)
	assert.Equal(t, "v-default", v.ID)
}

func TestInitialSelection(t *testing.T) {
	sel := InitialSelection(gridSnapshot())
	assert.Equal(t, domain.Selection{"Color": "Red", "Size": "S"}, sel)

	assert.Empty(t, InitialSelection(&domain.CatalogSnapshot{}))
}

func selectableValues(t *testing.T, avail []OptionAvailability, name string) map[string]bool {
	t.Helper()
	for _, oa := range avail {
		if oa.Name == name {
			out := make(map[string]bool, len(oa.Values))
			for _, v := range oa.Values {
				out[v.Value] = v.Selectable
			}
			return out
		}
	}
	t.Fatalf("option %q not reported", name)
	return nil
}

func TestAvailability_RespectsOtherDimensions(t *testing.T) {
	snap := gridSnapshot()

	avail, err := Availability(snap, domain.Selection{"Color": "Red", "Size": "S"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"S": true, "M": false, "L": true}, selectableValues(t, avail, "Size"))
	assert.Equal(t, map[string]bool{"Red": true, "Blue": true}, selectableValues(t, avail, "Color"))

	avail, err = Availability(snap, domain.Selection{"Color": "Blue", "Size": "L"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"S": true, "M": true, "L": false}, selectableValues(t, avail, "Size"))
	// Red/L exists and is available, Blue/L does not exist.
	assert.Equal(t, map[string]bool{"Red": true, "Blue": false}, selectableValues(t, avail, "Color"))
}

// A first-match scan would find red-m (sold out) for Size=M and disable it
// even though blue-m is available with nothing else chosen.
func TestAvailability_IndependentOfVariantOrder(t *testing.T) {
	snap := gridSnapshot()
	reversed := *snap
	reversed.Variants = make([]domain.Variant, len(snap.Variants))
	for i, v := range snap.Variants {
		reversed.Variants[len(snap.Variants)-1-i] = v
	}

	for _, sel := range []domain.Selection{{}, {"Color": "Red"}, {"Size": "M"}, {"Color": "Blue", "Size": "S"}} {
		a, err := Availability(snap, sel)
		require.NoError(t, err)
		b, err := Availability(&reversed, sel)
		require.NoError(t, err)
		assert.Equal(t, a, b, "selection %s", sel.Key())
	}

	avail, err := Availability(snap, domain.Selection{})
	require.NoError(t, err)
	assert.True(t, selectableValues(t, avail, "Size")["M"])
}

func TestAvailability_MarksSelected(t *testing.T) {
	avail, err := Availability(sizeSnapshot(), domain.Selection{"Size": "L"})
	require.NoError(t, err)
	require.Len(t, avail, 1)
	for _, v := range avail[0].Values {
		assert.Equal(t, v.Value == "L", v.Selected)
		assert.True(t, v.Selectable)
	}
}

func TestAvailability_Malformed(t *testing.T) {
	_, err := Availability(sizeSnapshot(), domain.Selection{"Size": "XL"})
	assert.ErrorIs(t, err, domain.ErrMalformedSelection)
}
