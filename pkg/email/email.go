// Package email holds address helpers shared by the third-party request
// manager and the inbox reconciler, including the +tpr plus-address reply
// channel used to carry a correlation token through standard mail routing.
package email

import (
	"fmt"
	"strings"
	"unicode"
)

// plusTag prefixes the token segment of a plus-addressed local part, e.g.
// requests+tpr-<token>@certflow.example.
const plusTag = "tpr-"

// Normalize lower-cases and trims an address for comparison. Party emails are
// always normalized before the same-email check.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// PlusAddress embeds token into base's local part so replies to this address
// carry the token in their recipient headers.
func PlusAddress(base, token string) (string, error) {
	at := strings.LastIndexByte(base, '@')
	if at <= 0 || at == len(base)-1 {
		return "", fmt.Errorf("malformed base address %q", base)
	}
	local, domain := base[:at], base[at+1:]
	// Strip any existing plus segment so bases are composable.
	if plus := strings.IndexByte(local, '+'); plus > 0 {
		local = local[:plus]
	}
	return local + "+" + plusTag + token + "@" + domain, nil
}

// ExtractPlusToken pulls the token out of a plus-addressed recipient, if one
// is present. Addresses without a +tpr segment return ok=false.
func ExtractPlusToken(addr string) (string, bool) {
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 {
		return "", false
	}
	local := addr[:at]
	plus := strings.IndexByte(local, '+')
	if plus < 0 {
		return "", false
	}
	tag := local[plus+1:]
	if !strings.HasPrefix(tag, plusTag) {
		return "", false
	}
	token := tag[len(plusTag):]
	if token == "" {
		return "", false
	}
	return token, true
}

// ReferenceCode renders the textual form of a token as embedded in outbound
// message bodies, the third fallback the reconciler can match on.
func ReferenceCode(token string) string {
	return plusTag + token
}

// DeriveNameFromEmail guesses a first and last name from an address local
// part. Used when a third party is initiated with an empty display name.
func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
