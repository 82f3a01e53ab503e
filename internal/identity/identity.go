// Package identity derives deterministic content-hash identities for
// facts, provider groups, place-of-service sets, and addresses. The same
// logical entity always hashes to the same 128-bit identifier, across
// runs and machines, so re-running a slice of input is idempotent.
package identity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/ratelake/ratelake/pkg/types"
)

// fieldSep joins normalized tuple fields before hashing. It cannot occur
// inside a normalized field, which keeps the encoding injective.
const fieldSep = "|"

// Hash returns the lowercase hex form of the 128-bit murmur3 hash of the
// given fields, joined in order.
func Hash(fields ...string) string {
	h1, h2 := murmur3.Sum128([]byte(strings.Join(fields, fieldSep)))
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// FactUID computes the identity of a fact row from its thirteen
// identity-bearing fields. The rate is fixed to four decimal places so
// float formatting noise cannot split identities.
func FactUID(f *types.FactRecord) string {
	return Hash(
		Normalize(f.State),
		Normalize(f.YearMonth),
		Normalize(f.PayerSlug),
		Normalize(f.BillingClass),
		Normalize(f.CodeType),
		Normalize(f.Code),
		Normalize(f.ProviderGroupUID),
		Normalize(f.PosSetID),
		Normalize(f.NegotiatedType),
		Normalize(f.NegotiationArrangement),
		fmt.Sprintf("%.4f", f.NegotiatedRate),
		Normalize(f.ExpirationDate),
		Normalize(f.Modifiers),
	)
}

// ProviderGroupUID computes the identity of a provider group from its
// raw group identifier, the member TIN values, and the member NPIs.
// Members are sorted so ordering in the source never matters.
func ProviderGroupUID(groupID string, tins, npis []string) string {
	return Hash(
		Normalize(groupID),
		joinSorted(tins),
		joinSorted(npis),
	)
}

// PosSetID computes the identity of a place-of-service code set.
// The set is order-insensitive and deduplicated.
func PosSetID(codes []string) string {
	return Hash(joinSortedUnique(codes))
}

// AddressHash computes the identity of a practice address from its
// normalized components.
func AddressHash(line1, line2, city, state, zip string) string {
	return Hash(
		Normalize(line1),
		Normalize(line2),
		Normalize(city),
		Normalize(state),
		Normalize(zip),
	)
}

func joinSorted(vals []string) string {
	norm := make([]string, 0, len(vals))
	for _, v := range vals {
		norm = append(norm, Normalize(v))
	}
	sort.Strings(norm)
	return strings.Join(norm, ",")
}

func joinSortedUnique(vals []string) string {
	seen := make(map[string]struct{}, len(vals))
	norm := make([]string, 0, len(vals))
	for _, v := range vals {
		n := Normalize(v)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		norm = append(norm, n)
	}
	sort.Strings(norm)
	return strings.Join(norm, ",")
}
