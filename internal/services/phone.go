package services

// NormalizePhone reduces any phone number form the telephony vendor or a
// browser may send to the canonical matching key: digits only, with the
// legacy trunk prefix 8 coerced to country code 7 and bare ten-digit
// numbers prefixed with 7.
//
//	"+7 (999) 123-45-67" -> "79991234567"
//	"89991234567"        -> "79991234567"
//	"9991234567"         -> "79991234567"
func NormalizePhone(raw string) string {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			digits = append(digits, raw[i])
		}
	}

	switch {
	case len(digits) == 11 && digits[0] == '8':
		digits[0] = '7'
	case len(digits) == 10:
		digits = append([]byte{'7'}, digits...)
	}

	return string(digits)
}
