// Package sector maps PSX sector names and numeric sector codes onto the small
// taxonomy shown to users.
package sector

import (
	"strings"
	"unicode"
)

// Other is returned when neither the raw label nor the fallback resolves.
const Other = "Other"

var table = map[string]string{
	"OIL AND GAS EXPLORATION COMPANIES":       "Energy",
	"OIL AND GAS MARKETING COMPANIES":         "Energy",
	"REFINERY":                                "Energy",
	"POWER GENERATION & DISTRIBUTION":         "Power",
	"COMMERCIAL BANKS":                        "Banking",
	"INVESTMENT BANKS / SECURITIES COMPANIES": "Banking",
	"CEMENT":                                  "Cement",
	"FERTILIZER":                              "Fertilizer",
	"CHEMICAL":                                "Chemicals",
	"TECHNOLOGY & COMMUNICATION":              "Technology",
	"AUTOMOBILE ASSEMBLER":                    "Automobile",
	"AUTOMOBILE PARTS & ACCESSORIES":          "Automobile",
	"TEXTILE COMPOSITE":                       "Textile",
	"TEXTILE SPINNING":                        "Textile",
	"TEXTILE WEAVING":                         "Textile",
	"LEATHER & TANNERIES":                     "Textile",
	"JUTE":                                    "Textile",
	"SYNTHETIC & RAYON":                       "Textile",
	"PHARMACEUTICAL":                          "Pharma",
	"FOOD & PERSONAL CARE PRODUCTS":           "Food",
	"SUGAR & ALLIED INDUSTRIES":               "Food",
	"VANASPATI & ALLIED INDUSTRIES":           "Food",
	"ENGINEERING":                             "Steel",
	"INSURANCE":                               "Insurance",
	"LEASING COMPANIES":                       "Finance",
	"MODARABAS":                               "Finance",
	"CLOSE - END MUTUAL FUND":                 "Fund",
	"REAL ESTATE INVESTMENT TRUST":            "REIT",
	"TRANSPORT":                               "Transport",
	"TOBACCO":                                 "Consumer",
	"PAPER & BOARD":                           "Paper",
	"GLASS & CERAMICS":                        "Glass",
	"CABLE & ELECTRICAL GOODS":                "Electronics",
	"MISCELLANEOUS":                           Other,

	"0807": "Banking",
	"0808": "Banking",
	"0820": "Energy",
	"0821": "Energy",
	"0822": "Energy",
	"0823": "Power",
	"0824": "Power",
	"0825": "Cement",
	"0826": "Fertilizer",
	"0827": "Chemicals",
	"0828": "Telecom",
	"0829": "Technology",
	"0830": "Automobile",
	"0831": "Automobile",
	"0832": "Textile",
	"0833": "Textile",
	"0834": "Textile",
	"0835": "Pharma",
	"0836": "Food",
	"0837": "Food",
	"0838": "Insurance",
	"0839": "Steel",
	"0840": "Electronics",
	"0841": "Paper",
	"0842": "Consumer",
	"0843": "Transport",
	"0844": Other,
}

// labels lets an already-resolved taxonomy label pass through unchanged.
var labels = func() map[string]string {
	out := make(map[string]string)
	for _, v := range table {
		out[strings.ToUpper(v)] = v
	}
	return out
}()

// Resolve returns the taxonomy label for raw. When raw is unknown the fallback
// is used, and when that is empty too the result is Other.
func Resolve(raw, fallback string) string {
	key := normalize(raw)
	if key != "" {
		if v, ok := table[key]; ok {
			return v
		}
		if v, ok := labels[key]; ok {
			return v
		}
	}
	if fb := strings.TrimSpace(fallback); fb != "" {
		return fb
	}
	return Other
}

// Known reports whether raw maps to a taxonomy label without falling back.
func Known(raw string) bool {
	key := normalize(raw)
	_, inTable := table[key]
	_, isLabel := labels[key]
	return inTable || isLabel
}

func normalize(raw string) string {
	key := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	if key != "" && len(key) < 4 && isDigits(key) {
		key = strings.Repeat("0", 4-len(key)) + key
	}
	return key
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
