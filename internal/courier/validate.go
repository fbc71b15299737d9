package courier

import (
	"regexp"
	"strings"
)

// Recipient name length accepted by the provider.
const (
	minRecipientNameLen = 3
	maxRecipientNameLen = 60
)

var (
	phoneCleanRe    = regexp.MustCompile(`[\s\.\-\(\)\/]+`)
	phoneMobileRe   = regexp.MustCompile(`^07\d{8}$`)
	phoneLandlineRe = regexp.MustCompile(`^0[23]\d{8}$`)
)

// NormalizePhone strips whitespace and punctuation and collapses
// international prefixes to the local leading-zero form.
func NormalizePhone(phone string) string {
	p := phoneCleanRe.ReplaceAllString(phone, "")
	switch {
	case strings.HasPrefix(p, "+40"):
		p = "0" + p[3:]
	case strings.HasPrefix(p, "0040"):
		p = "0" + p[4:]
	case strings.HasPrefix(p, "40") && len(p) == 11:
		p = "0" + p[2:]
	}
	return p
}

// ValidPhone reports whether a normalized phone matches the national
// mobile or landline pattern.
func ValidPhone(phone string) bool {
	return phoneMobileRe.MatchString(phone) || phoneLandlineRe.MatchString(phone)
}

// ValidateAWBSpec checks the spec against the provider's format rules
// before any remote call. It returns a single non-retryable *Error
// listing every violated field, or nil when the spec is submittable.
func (s *AWBSpec) Validate() error {
	verr := NewError(CodeValidation, "awb spec failed local validation")

	name := strings.TrimSpace(s.Recipient.Name)
	if len(name) < minRecipientNameLen || len(name) > maxRecipientNameLen {
		verr.WithField("recipient_name", "must be between 3 and 60 characters")
	}

	phone := NormalizePhone(s.Recipient.Phone)
	if !ValidPhone(phone) {
		verr.WithField("recipient_phone", "must be a valid national mobile or landline number")
	}

	if strings.TrimSpace(s.Recipient.County) == "" {
		verr.WithField("recipient_county", "must not be empty")
	}
	if strings.TrimSpace(s.Recipient.City) == "" {
		verr.WithField("recipient_city", "must not be empty")
	}
	if strings.TrimSpace(s.Recipient.Street) == "" {
		verr.WithField("recipient_street", "must not be empty")
	}

	if len(verr.Fields) == 0 {
		return nil
	}
	return verr
}
