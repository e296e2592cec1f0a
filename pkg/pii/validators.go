package pii

import "strings"

// Checksum validators for domain-specific identifiers. Each takes the
// digits-only candidate (formatting already stripped) and reports whether
// the check digit holds. A failing checksum drops the candidate entirely.

var (
	nipWeights     = []int{6, 5, 7, 2, 3, 4, 5, 6, 7}
	regon9Weights  = []int{8, 9, 2, 3, 4, 5, 6, 7}
	regon14Weights = []int{2, 4, 8, 5, 0, 9, 7, 3, 6, 1, 2, 4, 8}
	peselWeights   = []int{1, 3, 7, 9, 1, 3, 7, 9, 1, 3}
)

// ValidNIP checks the 10-digit tax identifier (weighted mod 11). A checksum
// of 10 is not a legal check digit.
func ValidNIP(digits string) bool {
	if len(digits) != 10 || !allDigits(digits) {
		return false
	}
	sum := 0
	for i, w := range nipWeights {
		sum += w * int(digits[i]-'0')
	}
	check := sum % 11
	if check == 10 {
		return false
	}
	return check == int(digits[9]-'0')
}

// ValidREGON checks the 9- or 14-digit business identifier (weighted mod 11,
// with 10 mapping to 0).
func ValidREGON(digits string) bool {
	switch len(digits) {
	case 9:
		return regonChecksum(digits, regon9Weights)
	case 14:
		return regonChecksum(digits, regon14Weights)
	default:
		return false
	}
}

func regonChecksum(digits string, weights []int) bool {
	if !allDigits(digits) {
		return false
	}
	sum := 0
	for i, w := range weights {
		sum += w * int(digits[i]-'0')
	}
	check := sum % 11
	if check == 10 {
		check = 0
	}
	return check == int(digits[len(digits)-1]-'0')
}

// ValidPESEL checks the 11-digit national identifier (weighted mod 10).
func ValidPESEL(digits string) bool {
	if len(digits) != 11 || !allDigits(digits) {
		return false
	}
	sum := 0
	for i, w := range peselWeights {
		sum += w * int(digits[i]-'0')
	}
	check := (10 - sum%10) % 10
	return check == int(digits[10]-'0')
}

// ValidLuhn checks a 13..19 digit card number.
func ValidLuhn(digits string) bool {
	if len(digits) < 13 || len(digits) > 19 || !allDigits(digits) {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ValidIBAN checks the ISO 13616 mod-97 rule. The candidate may contain
// spaces; letters are case-insensitive.
func ValidIBAN(candidate string) bool {
	s := strings.ToUpper(strings.ReplaceAll(candidate, " ", ""))
	if len(s) < 15 || len(s) > 34 {
		return false
	}
	// Country code and check digits move to the end before expansion.
	rearranged := s[4:] + s[:4]
	rem := 0
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			rem = (rem*10 + int(r-'0')) % 97
		case r >= 'A' && r <= 'Z':
			rem = (rem*100 + int(r-'A') + 10) % 97
		default:
			return false
		}
	}
	return rem == 1
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
