package postal

import (
	"context"
	"regexp"
	"strings"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrNoMatch means every lookup tier was exhausted without finding a
// postal code for the address.
var ErrNoMatch = errors.New("postal: no matching postal code")

// Nomenclature is the slice of the courier client the resolver queries.
type Nomenclature interface {
	Localities(ctx context.Context, creds courier.Credentials, county string) ([]courier.NomenclatureEntry, error)
	Streets(ctx context.Context, creds courier.Credentials, county, locality string) ([]courier.NomenclatureEntry, error)
}

// Resolver looks up postal codes in the courier's street nomenclature.
type Resolver struct {
	nomenclature Nomenclature
}

// NewResolver creates a postal code resolver over a courier client.
func NewResolver(nomenclature Nomenclature) *Resolver {
	return &Resolver{nomenclature: nomenclature}
}

var sectorPattern = regexp.MustCompile(`(?i)^\s*sector\s*([1-6])\s*$`)

// CanonicalizeBucharest rewrites the inconsistent ways upstream order
// sources encode Bucharest districts. Orders arrive with the sector
// either in the county field or in the city field; the nomenclature
// only answers for county "Bucuresti" with the sector as locality.
func CanonicalizeBucharest(county, city string) (string, string) {
	if m := sectorPattern.FindStringSubmatch(county); m != nil {
		return "Bucuresti", "Sector " + m[1]
	}
	if strings.Contains(Normalize(county), "bucuresti") {
		if m := sectorPattern.FindStringSubmatch(city); m != nil {
			return "Bucuresti", "Sector " + m[1]
		}
		return "Bucuresti", city
	}
	return county, city
}

// Resolve finds the postal code for an address. Street may be empty;
// most single-code localities resolve without it.
func (r *Resolver) Resolve(ctx context.Context, creds courier.Credentials, county, city, street string) (string, error) {
	county, locality := CanonicalizeBucharest(county, city)
	if county == "" || locality == "" {
		return "", ErrNoMatch
	}

	streets, err := r.nomenclature.Streets(ctx, creds, county, locality)
	if err != nil {
		return "", errors.Wrap(err, "failed to query street nomenclature")
	}

	if len(streets) == 0 {
		matched, ok, err := r.fuzzyLocality(ctx, creds, county, locality)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrNoMatch
		}
		log.Debug().
			Str("input", locality).
			Str("matched", matched).
			Msg("Fuzzy-matched locality for postal lookup")
		streets, err = r.nomenclature.Streets(ctx, creds, county, matched)
		if err != nil {
			return "", errors.Wrap(err, "failed to query street nomenclature")
		}
	}
	if len(streets) == 0 {
		return "", ErrNoMatch
	}

	if street != "" {
		if code, ok := matchStreet(streets, street); ok {
			return code, nil
		}
	}
	// No street given, or no street matched: most localities carry a
	// single code, so the first populated entry is the answer.
	for _, entry := range streets {
		if entry.PostalCode != "" {
			return entry.PostalCode, nil
		}
	}
	return "", ErrNoMatch
}

// fuzzyLocality scores every locality in the county against the input
// and returns the best one at or above MatchThreshold.
func (r *Resolver) fuzzyLocality(ctx context.Context, creds courier.Credentials, county, locality string) (string, bool, error) {
	entries, err := r.nomenclature.Localities(ctx, creds, county)
	if err != nil {
		return "", false, errors.Wrap(err, "failed to list localities")
	}
	var best string
	var bestScore float64
	for _, entry := range entries {
		if score := ContainmentScore(entry.Locality, locality); score > bestScore {
			best, bestScore = entry.Locality, score
		}
	}
	if bestScore < MatchThreshold {
		return "", false, nil
	}
	return best, true, nil
}

// matchStreet tries exact match, then substring containment, then
// token overlap, in that order across the whole list per tier.
func matchStreet(entries []courier.NomenclatureEntry, street string) (string, bool) {
	want := Normalize(street)
	for _, entry := range entries {
		if Normalize(entry.Street) == want && entry.PostalCode != "" {
			return entry.PostalCode, true
		}
	}
	for _, entry := range entries {
		have := Normalize(entry.Street)
		if have == "" || entry.PostalCode == "" {
			continue
		}
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return entry.PostalCode, true
		}
	}
	for _, entry := range entries {
		if entry.PostalCode != "" && TokensOverlap(entry.Street, street) {
			return entry.PostalCode, true
		}
	}
	return "", false
}
