package masking

import (
	"regexp"

	"github.com/Lucifer7355/pii-anonymizer/anonymize"
)

const (
	monthNames = `(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)`
	streetTypes = `(?:Street|St|Avenue|Ave|Boulevard|Blvd|Road|Rd|Lane|Ln|Drive|Dr|Court|Ct|Way|Square|Sq|Plaza|Plz|Trail|Trl|Terrace|Ter|Place|Pl|Parkway|Pkwy|Loop)`
)

// Placeholders maps each category to the token that replaces its matches.
var Placeholders = map[anonymize.Category]string{
	anonymize.CategoryName:    "[Name_Anonymized]",
	anonymize.CategoryDate:    "[Date_Anonymized]",
	anonymize.CategoryEmail:   "[Email_Anonymized]",
	anonymize.CategoryPhone:   "[Phone_Anonymized]",
	anonymize.CategoryID:      "[ID_Anonymized]",
	anonymize.CategoryAddress: "[Address_Anonymized]",
}

// Pattern is a named expression belonging to one category.
type Pattern struct {
	Name string
	Expr *regexp.Regexp
}

// DefaultPatterns is the built-in catalogue. Names are not listed: they come
// from the request's names list.
var DefaultPatterns = map[anonymize.Category][]Pattern{
	anonymize.CategoryDate: {
		{Name: "date_mmddyyyy", Expr: regexp.MustCompile(`\b(?:0?[1-9]|1[0-2])[/\-](?:0?[1-9]|[12]\d|3[01])[/\-](?:19|20)?\d{2}\b`)},
		{Name: "date_month_dd_yyyy", Expr: regexp.MustCompile(`\b` + monthNames + `\s+(?:0?[1-9]|[12]\d|3[01])(?:st|nd|rd|th)?,?\s+(?:19|20)?\d{2}\b`)},
		{Name: "date_dd_month_yyyy", Expr: regexp.MustCompile(`\b(?:0?[1-9]|[12]\d|3[01])(?:st|nd|rd|th)?\s+` + monthNames + `\s+(?:19|20)?\d{2}\b`)},
		{Name: "date_yyyy_mm_dd", Expr: regexp.MustCompile(`\b(?:19|20)?\d{2}[/\-](?:0?[1-9]|1[0-2])[/\-](?:0?[1-9]|[12]\d|3[01])\b`)},
	},
	anonymize.CategoryEmail: {
		{Name: "email", Expr: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	},
	anonymize.CategoryPhone: {
		{Name: "phone_nanp", Expr: regexp.MustCompile(`(?:\+?1[-.\s]?)?(?:\(\d{3}\)|\b\d{3})[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
		{Name: "phone_mobile", Expr: regexp.MustCompile(`\b[6-9]\d{9}\b`)},
	},
	anonymize.CategoryID: {
		{Name: "us_ssn", Expr: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{Name: "passport", Expr: regexp.MustCompile(`\b[A-Z]{1,2}\d{6,9}\b`)},
		{Name: "drivers_license", Expr: regexp.MustCompile(`\b(?:DL|[Ll]icense)[\s#:]*[A-Z]\d{7,9}\b`)},
		{Name: "pan", Expr: regexp.MustCompile(`\b[A-Z]{5}\d{4}[A-Z]\b`)},
		{Name: "aadhaar", Expr: regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}\b`)},
		{Name: "gstin", Expr: regexp.MustCompile(`\b\d{2}[A-Z]{5}\d{4}[A-Z][1-9A-Z]Z[0-9A-Z]\b`)},
	},
	anonymize.CategoryAddress: {
		{Name: "address_street", Expr: regexp.MustCompile(`\b\d{1,5}(?:\s(?:[A-Z][\w'-]*|\d+(?:st|nd|rd|th))){1,4}\s` + streetTypes + `\b`)},
		{Name: "address_with_zip", Expr: regexp.MustCompile(`\b\d{1,5}\s[\w\s]+,\s*\w+\s*,\s*[A-Z]{2}\s*\d{5}(?:-\d{4})?\b`)},
		{Name: "po_box", Expr: regexp.MustCompile(`\bP\.?\s?O\.?\s*Box\s+\d+\b`)},
	},
}
