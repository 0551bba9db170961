package domain

import (
	"fmt"
	"net/mail"
	"strings"
)

// ValidationError reports malformed input at the write boundary.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid returns a *ValidationError for field.
func Invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Donor identifies who is making a claim.
type Donor struct {
	Name  string `json:"donor_name"`
	Email string `json:"donor_email"`
}

// Normalize trims the name and lower-cases the email.
func (d Donor) Normalize() Donor {
	return Donor{
		Name:  strings.TrimSpace(d.Name),
		Email: NormalizeEmail(d.Email),
	}
}

// Validate checks the donor name is present and the email is a bare
// address ("Jane <jane@x.com>" is rejected).
func (d Donor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return Invalid("donor_name", "is required")
	}
	return ValidateEmail("donor_email", d.Email)
}

// ValidateEmail requires a bare address with a dotted domain.
func ValidateEmail(field, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return Invalid(field, "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return Invalid(field, "%q is not a valid email address", email)
	}
	return nil
}

// ValidateQuantity rejects non-positive quantities.
func ValidateQuantity(field string, q int) error {
	if q < 1 {
		return Invalid(field, "must be at least 1, got %d", q)
	}
	return nil
}

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
