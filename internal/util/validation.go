package util

import (
	"regexp"
)

const MaxMerchantIDLength = 128

var merchantIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:@-]*$`)

// IsValidMerchantID accepts opaque storefront identifiers made of
// URL-safe characters.
func IsValidMerchantID(s string) bool {
	if s == "" || len(s) > MaxMerchantIDLength {
		return false
	}
	return merchantIDRegex.MatchString(s)
}
