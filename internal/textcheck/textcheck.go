// Package textcheck has the small ASCII validators used when parsing
// addresses and configuration values.
package textcheck

// IsInteger reports whether s is a plain ASCII integer: one optional
// leading sign followed by digits only. No spaces, no exponents, no
// grouping.
func IsInteger(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[0] == '+' || s[0] == '-' {
		if len(s) == 1 {
			return false
		}
		i = 1
	}
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsDecimal reports whether s is a plain ASCII decimal number: one optional
// leading sign, at least one digit, and at most one dot. Exponent forms are
// rejected.
func IsDecimal(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[0] == '+' || s[0] == '-' {
		i = 1
	}
	digits := false
	dot := false
	for ; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
			digits = true
		case s[i] == '.':
			if dot {
				return false
			}
			dot = true
		default:
			return false
		}
	}
	return digits
}
