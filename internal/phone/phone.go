// Package phone canonicalizes raw WhatsApp sender/recipient identifiers
// into stable lookup keys of the form +<countrycode><digits>.
package phone

import "strings"

const channelPrefix = "whatsapp:"

// Normalizer turns arbitrary provider-supplied phone strings into
// canonical keys. Numbers without a country code are assumed domestic
// and prefixed with the configured default.
type Normalizer struct {
	defaultCountryCode string
}

func NewNormalizer(defaultCountryCode string) *Normalizer {
	return &Normalizer{defaultCountryCode: defaultCountryCode}
}

// StripChannelPrefix removes a leading "whatsapp:" (case-insensitive) and
// surrounding whitespace.
func StripChannelPrefix(raw string) string {
	value := strings.TrimSpace(raw)
	if len(value) >= len(channelPrefix) && strings.EqualFold(value[:len(channelPrefix)], channelPrefix) {
		value = value[len(channelPrefix):]
	}
	return strings.TrimSpace(value)
}

// Normalize returns the canonical phone key for raw, or "" when raw
// contains no usable digits. Idempotent: normalizing an already
// normalized key returns it unchanged.
func (n *Normalizer) Normalize(raw string) string {
	value := StripChannelPrefix(raw)
	if value == "" {
		return ""
	}

	value = strings.Join(strings.Fields(value), "")
	if value == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(value, "+"):
		digits := keepDigits(value[1:])
		if digits == "" {
			return ""
		}
		return "+" + digits
	case strings.HasPrefix(value, "00"):
		digits := keepDigits(value[2:])
		if digits == "" {
			return ""
		}
		return "+" + digits
	default:
		digits := keepDigits(value)
		if digits == "" {
			return ""
		}
		if strings.HasPrefix(digits, n.defaultCountryCode) {
			return "+" + digits
		}
		return "+" + n.defaultCountryCode + digits
	}
}

// WhatsAppAddress returns the provider channel address for raw, or ""
// when raw does not normalize.
func (n *Normalizer) WhatsAppAddress(raw string) string {
	normalized := n.Normalize(raw)
	if normalized == "" {
		return ""
	}
	return channelPrefix + normalized
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
