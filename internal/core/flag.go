package core

// regionalIndicatorOffset maps 'A' onto U+1F1E6 REGIONAL INDICATOR SYMBOL LETTER A.
const regionalIndicatorOffset = 0x1F1E6 - 'A'

// Flag returns a flag emoji for a currency code, derived from its ISO 3166
// country prefix. EUR has no country and gets the EU flag.
func Flag(code string) string {
	code = NormalizeCode(code)
	if code == "EUR" {
		return "🇪🇺"
	}
	if len(code) < 2 {
		return "💰"
	}
	var out []rune
	for _, r := range code[:2] {
		if r < 'A' || r > 'Z' {
			return "💰"
		}
		out = append(out, r+regionalIndicatorOffset)
	}
	return string(out)
}
