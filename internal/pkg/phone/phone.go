// Package phone normalizes recipient phone numbers for SMS delivery.
package phone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalid is returned for numbers that cannot receive SMS.
var ErrInvalid = errors.New("invalid phone number")

// Normalizer converts free-form numbers to E.164, interpreting numbers
// without a country prefix in its default region.
type Normalizer struct {
	region string
}

// NewNormalizer creates a Normalizer. An empty region defaults to "US".
func NewNormalizer(defaultRegion string) *Normalizer {
	if defaultRegion == "" {
		defaultRegion = "US"
	}
	return &Normalizer{region: strings.ToUpper(defaultRegion)}
}

// E164 returns the number in E.164 form, e.g. +15551234567.
func (n *Normalizer) E164(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalid)
	}
	parsed, err := phonenumbers.Parse(raw, n.region)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("%w: %s", ErrInvalid, raw)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
