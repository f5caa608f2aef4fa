package countries

import "strings"

// Registry is the static lookup from country names and aliases to ISO
// 3166-1 alpha-2 codes. It is built once and never mutated afterwards,
// so it is safe to share across goroutines.
type Registry struct {
	codeByAlias map[string]string
	nameByCode  map[string]string
}

type country struct {
	code    string
	name    string
	aliases []string
}

// The alias lists cover the spellings seen in the Johns Hopkins feed
// (e.g. "Korea, South", "Taiwan*") alongside the common English names.
var countryTable = []country{
	{"AR", "Argentina", nil},
	{"AU", "Australia", nil},
	{"AT", "Austria", nil},
	{"BE", "Belgium", nil},
	{"BR", "Brazil", []string{"Brasil"}},
	{"CA", "Canada", nil},
	{"CH", "Switzerland", nil},
	{"CL", "Chile", nil},
	{"CN", "China", []string{"Mainland China"}},
	{"CO", "Colombia", nil},
	{"CZ", "Czechia", []string{"Czech Republic"}},
	{"DE", "Germany", nil},
	{"DK", "Denmark", nil},
	{"EG", "Egypt", nil},
	{"ES", "Spain", nil},
	{"FI", "Finland", nil},
	{"FR", "France", nil},
	{"GB", "United Kingdom", []string{"UK", "Great Britain"}},
	{"GR", "Greece", nil},
	{"ID", "Indonesia", nil},
	{"IE", "Ireland", nil},
	{"IL", "Israel", nil},
	{"IN", "India", nil},
	{"IR", "Iran", []string{"Iran, Islamic Republic of"}},
	{"IT", "Italy", nil},
	{"JP", "Japan", nil},
	{"KR", "South Korea", []string{"Korea, South", "Republic of Korea"}},
	{"MX", "Mexico", nil},
	{"NG", "Nigeria", nil},
	{"NL", "Netherlands", []string{"The Netherlands", "Holland"}},
	{"NO", "Norway", nil},
	{"NZ", "New Zealand", nil},
	{"PE", "Peru", nil},
	{"PH", "Philippines", []string{"The Philippines"}},
	{"PK", "Pakistan", nil},
	{"PL", "Poland", nil},
	{"PT", "Portugal", nil},
	{"RU", "Russia", []string{"Russian Federation"}},
	{"SE", "Sweden", nil},
	{"SG", "Singapore", nil},
	{"TH", "Thailand", nil},
	{"TR", "Turkey", []string{"Turkiye"}},
	{"TW", "Taiwan", []string{"Taiwan*", "Taiwan, Province of China"}},
	{"UA", "Ukraine", nil},
	{"US", "United States", []string{"USA", "United States of America"}},
	{"VN", "Vietnam", []string{"Viet Nam"}},
	{"ZA", "South Africa", nil},
}

func NewRegistry() *Registry {
	r := &Registry{
		codeByAlias: make(map[string]string),
		nameByCode:  make(map[string]string),
	}
	for _, c := range countryTable {
		r.nameByCode[c.code] = c.name
		r.codeByAlias[normalize(c.code)] = c.code
		r.codeByAlias[normalize(c.name)] = c.code
		for _, alias := range c.aliases {
			r.codeByAlias[normalize(alias)] = c.code
		}
	}
	return r
}

// Resolve maps a country name, alias or ISO code to the alpha-2 code.
// The lookup is case-insensitive and ignores surrounding whitespace.
func (r *Registry) Resolve(nameOrCode string) (string, bool) {
	code, ok := r.codeByAlias[normalize(nameOrCode)]
	return code, ok
}

// DisplayName returns the canonical English name for an alpha-2 code,
// or the empty string for unknown codes.
func (r *Registry) DisplayName(code string) string {
	return r.nameByCode[strings.ToUpper(code)]
}

// Len reports the number of countries in the registry.
func (r *Registry) Len() int {
	return len(r.nameByCode)
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
