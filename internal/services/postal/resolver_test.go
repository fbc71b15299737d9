package postal

import (
	"context"
	"testing"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier"

	"github.com/stretchr/testify/require"
)

// fakeNomenclature serves canned locality and street lists keyed by
// county and locality.
type fakeNomenclature struct {
	localities map[string][]courier.NomenclatureEntry
	streets    map[string][]courier.NomenclatureEntry
}

func (f *fakeNomenclature) Localities(ctx context.Context, creds courier.Credentials, county string) ([]courier.NomenclatureEntry, error) {
	return f.localities[county], nil
}

func (f *fakeNomenclature) Streets(ctx context.Context, creds courier.Credentials, county, locality string) ([]courier.NomenclatureEntry, error) {
	return f.streets[county+"/"+locality], nil
}

func fixture() *fakeNomenclature {
	return &fakeNomenclature{
		localities: map[string][]courier.NomenclatureEntry{
			"Mures": {
				{County: "Mures", Locality: "Targu Mures"},
				{County: "Mures", Locality: "Sighisoara"},
			},
			"Bucuresti": {
				{County: "Bucuresti", Locality: "Sector 1"},
				{County: "Bucuresti", Locality: "Sector 3"},
			},
		},
		streets: map[string][]courier.NomenclatureEntry{
			"Mures/Targu Mures": {
				{Street: "Piata Trandafirilor", PostalCode: "540049"},
				{Street: "Strada Livezeni", PostalCode: "540088"},
			},
			"Mures/Sighisoara": {
				{Street: "Strada Morii", PostalCode: "545400"},
			},
			"Bucuresti/Sector 3": {
				{Street: "Calea Vitan", PostalCode: "031281"},
				{Street: "Strada Burebista", PostalCode: "031106"},
			},
			"Cluj/Floresti": {
				{Street: "", PostalCode: "407280"},
			},
		},
	}
}

func TestResolveExactLocality(t *testing.T) {
	r := NewResolver(fixture())

	code, err := r.Resolve(context.Background(), courier.Credentials{}, "Mures", "Targu Mures", "Strada Livezeni")
	require.NoError(t, err)
	require.Equal(t, "540088", code)
}

func TestResolveWithDiacritics(t *testing.T) {
	r := NewResolver(fixture())

	// Street matching folds diacritics on both sides.
	code, err := r.Resolve(context.Background(), courier.Credentials{}, "Mures", "Targu Mures", "Strada Livezeni")
	require.NoError(t, err)
	require.Equal(t, "540088", code)

	code, err = r.Resolve(context.Background(), courier.Credentials{}, "Mures", "Targu Mures", "Piața Trandafirilor")
	require.NoError(t, err)
	require.Equal(t, "540049", code)
}

func TestResolveFuzzyLocality(t *testing.T) {
	r := NewResolver(fixture())

	// Imported orders sometimes append the county to the city field.
	// "Sighisoara Mures" is not in the nomenclature; the containment
	// score against "Sighisoara" must carry the lookup.
	code, err := r.Resolve(context.Background(), courier.Credentials{}, "Mures", "Sighisoara Mures", "")
	require.NoError(t, err)
	require.Equal(t, "545400", code)
}

func TestResolveWithoutStreetTakesFirstCode(t *testing.T) {
	r := NewResolver(fixture())

	code, err := r.Resolve(context.Background(), courier.Credentials{}, "Mures", "Targu Mures", "")
	require.NoError(t, err)
	require.Equal(t, "540049", code)
}

func TestResolveUnmatchedStreetFallsBack(t *testing.T) {
	r := NewResolver(fixture())

	code, err := r.Resolve(context.Background(), courier.Credentials{}, "Mures", "Targu Mures", "Strada Inexistenta")
	require.NoError(t, err)
	require.Equal(t, "540049", code)
}

func TestResolveStreetTokenOverlap(t *testing.T) {
	r := NewResolver(fixture())

	// "Bd. Vitan" shares the token "vitan" with "Calea Vitan".
	code, err := r.Resolve(context.Background(), courier.Credentials{}, "Bucuresti", "Sector 3", "Bd. Vitan")
	require.NoError(t, err)
	require.Equal(t, "031281", code)
}

func TestResolveBucharestSectorAsCounty(t *testing.T) {
	r := NewResolver(fixture())

	// Upstream sources sometimes put the sector where the county goes.
	code, err := r.Resolve(context.Background(), courier.Credentials{}, "Sector 3", "Bucuresti", "")
	require.NoError(t, err)
	require.Equal(t, "031281", code)
}

func TestResolveBucharestSectorAsCity(t *testing.T) {
	r := NewResolver(fixture())

	code, err := r.Resolve(context.Background(), courier.Credentials{}, "Bucuresti", "Sector 3", "")
	require.NoError(t, err)
	require.Equal(t, "031281", code)
}

func TestResolveNoMatch(t *testing.T) {
	r := NewResolver(fixture())

	_, err := r.Resolve(context.Background(), courier.Credentials{}, "Mures", "Localitate Negasita", "")
	require.ErrorIs(t, err, ErrNoMatch)

	_, err = r.Resolve(context.Background(), courier.Credentials{}, "", "", "")
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestCanonicalizeBucharest(t *testing.T) {
	tests := []struct {
		county, city         string
		wantCounty, wantCity string
	}{
		{"Sector 3", "Bucuresti", "Bucuresti", "Sector 3"},
		{"sector 1", "Bucuresti", "Bucuresti", "Sector 1"},
		{"Bucuresti", "Sector 2", "Bucuresti", "Sector 2"},
		{"București", "Sector 4", "Bucuresti", "Sector 4"},
		{"Cluj", "Cluj-Napoca", "Cluj", "Cluj-Napoca"},
	}

	for _, tt := range tests {
		county, city := CanonicalizeBucharest(tt.county, tt.city)
		require.Equal(t, tt.wantCounty, county)
		require.Equal(t, tt.wantCity, city)
	}
}

func TestContainmentScore(t *testing.T) {
	require.Equal(t, 1.0, ContainmentScore("Targu Mures", "targu mureș"))
	require.InDelta(t, 0.45, ContainmentScore("Targu Mures", "Mures"), 0.01)
	require.Equal(t, 0.0, ContainmentScore("Sighisoara", "Cluj"))
	require.Equal(t, 0.0, ContainmentScore("", "Cluj"))
}
