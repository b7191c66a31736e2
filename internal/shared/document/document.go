package document

import "strings"

const MinTaxIDLength = 11 // CPF; CNPJ has 14

// OnlyDigits strips everything but ASCII digits ("123.456.789-01" -> "12345678901").
func OnlyDigits(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// ValidTaxID reports whether a raw CPF/CNPJ has at least MinTaxIDLength digits
// and nothing but digits once the usual punctuation is removed.
func ValidTaxID(raw string) bool {
	cleaned := strings.NewReplacer(".", "", "-", "", "/", "", " ", "").Replace(strings.TrimSpace(raw))
	if len(cleaned) < MinTaxIDLength {
		return false
	}
	return OnlyDigits(cleaned) == cleaned
}

// Last4 keeps the tail of a card number for logs.
func Last4(number string) string {
	d := OnlyDigits(number)
	if len(d) <= 4 {
		return d
	}
	return d[len(d)-4:]
}
