package email

import (
	"net/mail"
	"strings"
	"unicode"
)

// Normalize trims and lower-cases an address. Profiles, accounts and join
// requests are all indexed by the normalized form.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// NormalizeAll normalizes a list, dropping blanks and duplicates. Order is preserved.
func NormalizeAll(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		n := Normalize(a)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Valid reports whether address is a bare mailbox (no display name).
func Valid(address string) bool {
	if address == "" || len(address) > 254 {
		return false
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil {
		return false
	}
	return parsed.Address == address
}

// DeriveNameFromEmail builds a display name for placeholder profiles created
// before their owner has registered.
func DeriveNameFromEmail(email string) string {
	localPart := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "Neighbor"
	}

	names := make([]string, 0, len(parts))
	for _, p := range parts {
		names = append(names, capitalize(p))
	}
	return strings.Join(names, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
