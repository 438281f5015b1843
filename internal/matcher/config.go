// Package matcher is the attribution engine: it assigns salespeople and a
// corrected distributor to freshly ingested commission lines and routes the
// lines it cannot resolve to the Entries Need Fixing workbook.
//
// Attribution runs two independent lookups per row:
//  1. Tracked-customer match: (Reported Customer, Part Number) against the
//     Lookup Master, case-insensitively. Exactly one entry copies its
//     attribution fields into the row.
//  2. Distributor normalization: every Distributor Map abbreviation found as
//     a substring of the alphanumeric, lower-cased Reported Distributor.
//     Exactly one corrected name is written; more than one writes the
//     MULTIPLE sentinel.
//
// A row whose match count on either axis is not exactly one is copied to the
// fix table with both counts and today's date. It may still have been
// enriched on the other axis.
//
// Example usage:
//
//	engine := matcher.NewEngine(nil)
//	engine.LoadLookupMaster(lookupMaster)
//	engine.LoadDistributorMap(distributors)
//	result := engine.Attribute(rows, models.FixColumns(canonical))
package matcher

import (
	"fmt"
	"time"
)

// MatchOutcome classifies a lookup by its number of matches.
type MatchOutcome int

const (
	// MatchUnique is exactly one match; the row is enriched.
	MatchUnique MatchOutcome = iota

	// MatchNone is no match; the row needs a new lookup entry.
	MatchNone

	// MatchMultiple is more than one match; the lookup itself is ambiguous.
	MatchMultiple
)

// OutcomeOf returns the outcome for a match count
func OutcomeOf(count int) MatchOutcome {
	switch {
	case count == 1:
		return MatchUnique
	case count == 0:
		return MatchNone
	default:
		return MatchMultiple
	}
}

// String returns the string representation of MatchOutcome
func (o MatchOutcome) String() string {
	switch o {
	case MatchUnique:
		return "Unique"
	case MatchNone:
		return "None"
	case MatchMultiple:
		return "Multiple"
	default:
		return "Unknown"
	}
}

// AttributionConfig holds the engine's behavioral options.
type AttributionConfig struct {
	// RefreshLastUsed stamps Last Used on Lookup Master entries that produce a
	// unique match.
	RefreshLastUsed bool `json:"refresh_last_used"`

	// RootCustomerHint writes the Root-Customer Map salesperson into the fix
	// copy's Design Sales when the Lookup Master has no entry for the row.
	RootCustomerHint bool `json:"root_customer_hint"`

	// Now supplies today's date for Date Added and Last Used.
	Now func() time.Time `json:"-"`
}

// DefaultAttributionConfig returns a configuration with sensible defaults
func DefaultAttributionConfig() *AttributionConfig {
	return &AttributionConfig{
		RefreshLastUsed:  true,
		RootCustomerHint: true,
		Now:              time.Now,
	}
}

// Validate checks if the attribution configuration is valid
func (c *AttributionConfig) Validate() error {
	if c.Now == nil {
		return fmt.Errorf("attribution config needs a clock")
	}
	return nil
}
