package models

// Canonical column names. These are the headers written to every working
// file, so they are human-readable rather than identifiers.
const (
	ColCMSales              = "CM Sales"
	ColDesignSales          = "Design Sales"
	ColCMSplit              = "CM Split"
	ColReportedCustomer     = "Reported Customer"
	ColTName                = "T-Name"
	ColCM                   = "CM"
	ColTEndCust             = "T-End Cust"
	ColPartNumber           = "Part Number"
	ColReportedDistributor  = "Reported Distributor"
	ColPrincipal            = "Principal"
	ColCorrectedDistributor = "Corrected Distributor"
	ColInvoiceNumber        = "Invoice Number"
	ColQuantity             = "Quantity"
	ColUnitPrice            = "Unit Price"
	ColUnitCost             = "Unit Cost"
	ColInvoicedDollars      = "Invoiced Dollars"
	ColExtCost              = "Ext. Cost"
	ColPaidOnRevenue        = "Paid-On Revenue"
	ColCommissionRate       = "Commission Rate"
	ColSplitPercentage      = "Split Percentage"
	ColGrossRevReduction    = "Gross Rev Reduction"
	ColSharedRevTierRate    = "Shared Rev Tier Rate"
	ColActualCommPaid       = "Actual Comm Paid"
	ColSalesCommission      = "Sales Commission"
	ColCMSalesComm          = "CM Sales Comm"
	ColDesignSalesComm      = "Design Sales Comm"
	ColInvoiceDate          = "Invoice Date"
	ColPaidDate             = "Paid Date"
	ColCommMonth            = "Comm Month"
	ColYear                 = "Year"
	ColMonth                = "Month"
	ColQuarterShipped       = "Quarter Shipped"
	ColTNotes               = "T-Notes"
	ColCommSource           = "Comm Source"
	ColSourceFile           = "Source File"
	ColSalesReportDate      = "Sales Report Date"
	ColUniqueID             = "Unique ID"
)

// Lookup and ledger columns.
const (
	ColCity               = "City"
	ColDateAdded          = "Date Added"
	ColLastUsed           = "Last Used"
	ColDateQuarantined    = "Date Quarantined"
	ColSearchAbbreviation = "Search Abbreviation"
	ColCorrectedDist      = "Corrected Dist"
	ColSalesperson        = "Salesperson"
	ColSalespersonName    = "Name"
	ColEmail              = "Email"
	ColPrincipalName      = "Principal Name"
	ColAbbreviation       = "Abbreviation"
	ColFilename           = "Filename"
	ColTotalCommissions   = "Total Commissions"
	ColLookupMatches      = "Lookup Master Matches"
	ColDistributorMatches = "Distributor Matches"
	ColCurrentDesignSales = "CDS"
	ColAccountName        = "Account Name"
	ColPrimarySalesperson = "Primary Salesperson"
)

// Sentinel and carve-out values.
const (
	MultipleDistributorMatches = "MULTIPLE MATCHES FOUND DURING PROCESSING"
	CommSourceCost             = "Cost"
	CommSourceResale           = "Resale"
)

// VoidEndCustomers are end-customer markers that carry no salesperson and are
// never learned into the Lookup Master.
var VoidEndCustomers = []string{"INDIVIDUAL", "UNKNOWN", "ALLOWANCE"}

// ColumnKind classifies a column for coercion and formatting.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindDollar
	KindInteger
	KindPercent
	KindDate
	KindIdentifier
)

// String returns the string representation of ColumnKind
func (k ColumnKind) String() string {
	switch k {
	case KindDollar:
		return "dollar"
	case KindInteger:
		return "integer"
	case KindPercent:
		return "percent"
	case KindDate:
		return "date"
	case KindIdentifier:
		return "identifier"
	default:
		return "text"
	}
}

var columnKinds = map[string]ColumnKind{
	ColInvoicedDollars:    KindDollar,
	ColExtCost:            KindDollar,
	ColUnitPrice:          KindDollar,
	ColUnitCost:           KindDollar,
	ColPaidOnRevenue:      KindDollar,
	ColActualCommPaid:     KindDollar,
	ColSalesCommission:    KindDollar,
	ColCMSalesComm:        KindDollar,
	ColDesignSalesComm:    KindDollar,
	ColTotalCommissions:   KindDollar,
	ColQuantity:           KindInteger,
	ColYear:               KindInteger,
	ColLookupMatches:      KindInteger,
	ColDistributorMatches: KindInteger,
	ColCommissionRate:     KindPercent,
	ColSplitPercentage:    KindPercent,
	ColGrossRevReduction:  KindPercent,
	ColSharedRevTierRate:  KindPercent,
	ColCMSplit:            KindPercent,
	ColInvoiceDate:        KindDate,
	ColPaidDate:           KindDate,
	ColSalesReportDate:    KindDate,
	ColDateAdded:          KindDate,
	ColLastUsed:           KindDate,
	ColDateQuarantined:    KindDate,
	ColInvoiceNumber:      KindIdentifier,
	ColPartNumber:         KindIdentifier,
	ColPrincipal:          KindIdentifier,
}

// KindOf returns the classification of a column. Unknown columns are text.
func KindOf(column string) ColumnKind {
	return columnKinds[column]
}

// IsNumeric reports whether the column is coerced to a number on ingest.
func IsNumeric(column string) bool {
	switch KindOf(column) {
	case KindDollar, KindInteger, KindPercent:
		return true
	}
	return false
}

// CanonicalColumns builds the canonical column ordering from the header list
// of the field-mapping table. Derived columns are spliced in at fixed
// positions and duplicates are dropped keeping the first occurrence.
func CanonicalColumns(mappingHeaders []string) []string {
	out := []string{ColCMSales, ColDesignSales, ColCMSplit}

	spliced := map[string][]string{
		ColReportedCustomer:    {ColTName, ColCM, ColTEndCust},
		ColReportedDistributor: {ColPrincipal, ColCorrectedDistributor},
		ColActualCommPaid:      {ColSalesCommission, ColCMSalesComm, ColDesignSalesComm},
	}
	anchored := make(map[string]bool)

	for _, h := range mappingHeaders {
		out = append(out, h)
		if extra, ok := spliced[h]; ok {
			out = append(out, extra...)
			anchored[h] = true
		}
	}

	// Blocks whose anchor the mapping table lacks go after the mapped block.
	for _, anchor := range []string{ColReportedCustomer, ColReportedDistributor, ColActualCommPaid} {
		if !anchored[anchor] {
			out = append(out, spliced[anchor]...)
		}
	}

	out = append(out, ColCommMonth, ColYear, ColMonth, ColQuarterShipped)
	out = append(out, ColTNotes, ColCommSource, ColSourceFile, ColSalesReportDate, ColUniqueID)

	return dedupe(out)
}

func dedupe(cols []string) []string {
	seen := make(map[string]bool, len(cols))
	result := make([]string, 0, len(cols))
	for _, c := range cols {
		if seen[c] {
			continue
		}
		seen[c] = true
		result = append(result, c)
	}
	return result
}

// LookupMasterColumns is the column set of the Lookup Master.
var LookupMasterColumns = []string{
	ColCMSales, ColDesignSales, ColCMSplit, ColReportedCustomer, ColCM, ColPartNumber,
	ColTName, ColTEndCust, ColPrincipal, ColCity, ColDateAdded, ColLastUsed,
}

// QuarantineColumns is the Lookup Master column set plus the quarantine date.
var QuarantineColumns = append(append([]string{}, LookupMasterColumns...), ColDateQuarantined)

// FilesProcessedColumns is the column set of the Files Processed ledger.
var FilesProcessedColumns = []string{ColFilename, ColDateAdded, ColTotalCommissions}

// FixColumns returns the Fix workbook layout for a given canonical ordering.
func FixColumns(canonical []string) []string {
	cols := append([]string{}, canonical...)
	return dedupe(append(cols, ColLookupMatches, ColDistributorMatches, ColDateAdded))
}
