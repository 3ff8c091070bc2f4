package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/platinummonkey/taskhub/pkg/apierr"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

// Validator checks request input. Every violation is an apierr Validation
// error naming the offending field.
type Validator struct {
	config *ValidationConfig
}

// ValidationConfig defines validation rules
type ValidationConfig struct {
	// UsernameMinLength and UsernameMaxLength bound usernames, in characters
	UsernameMinLength int
	UsernameMaxLength int
	// PasswordMinLength and PasswordMaxLength bound passwords, in characters
	PasswordMinLength int
	PasswordMaxLength int
	// MaxNameLength bounds project names and task titles
	MaxNameLength int
}

// DefaultValidationConfig returns default validation settings
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		UsernameMinLength: 3,
		UsernameMaxLength: 20,
		PasswordMinLength: 6,
		PasswordMaxLength: 16,
		MaxNameLength:     255,
	}
}

// NewValidator creates a new validator
func NewValidator(config *ValidationConfig) *Validator {
	if config == nil {
		config = DefaultValidationConfig()
	}
	return &Validator{config: config}
}

// First returns the first non-nil error
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Email checks that value is a bare email address
func (v *Validator) Email(field, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return apierr.Validation(field, "Email is required")
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || addr.Name != "" {
		return apierr.Validation(field, "Invalid email address")
	}
	return nil
}

// Username checks username length
func (v *Validator) Username(value string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n < v.config.UsernameMinLength {
		return apierr.Validation("username",
			fmt.Sprintf("Username must be at least %d characters long", v.config.UsernameMinLength))
	}
	if n > v.config.UsernameMaxLength {
		return apierr.Validation("username",
			fmt.Sprintf("Username must be at most %d characters long", v.config.UsernameMaxLength))
	}
	return nil
}

// Password checks length and requires an uppercase letter, a lowercase
// letter and a digit
func (v *Validator) Password(field, value string) error {
	n := utf8.RuneCountInString(value)
	if n < v.config.PasswordMinLength {
		return apierr.Validation(field,
			fmt.Sprintf("Password must be at least %d characters long", v.config.PasswordMinLength))
	}
	if n > v.config.PasswordMaxLength {
		return apierr.Validation(field,
			fmt.Sprintf("Password must be at most %d characters long", v.config.PasswordMaxLength))
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range value {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return apierr.Validation(field,
			"Password must include at least one uppercase letter, one lowercase letter and one number")
	}
	return nil
}

// Required checks that value is not blank after trimming
func (v *Validator) Required(field, value, message string) error {
	if strings.TrimSpace(value) == "" {
		return apierr.Validation(field, message)
	}
	return nil
}

// Name checks a required, length-bounded name such as a project name or task title
func (v *Validator) Name(field, value, message string) error {
	if err := v.Required(field, value, message); err != nil {
		return err
	}
	if utf8.RuneCountInString(strings.TrimSpace(value)) > v.config.MaxNameLength {
		return apierr.Validation(field,
			fmt.Sprintf("%s must be at most %d characters long", field, v.config.MaxNameLength))
	}
	return nil
}

// OneOf checks that value is one of allowed
func (v *Validator) OneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return apierr.Validation(field,
		fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

// MemberRole parses a role that may be granted to a member. An empty value
// yields the default member role.
func (v *Validator) MemberRole(value string) (rbac.Role, error) {
	if value == "" {
		return rbac.RoleMember, nil
	}
	role := rbac.Role(value)
	if !role.Assignable() {
		return "", apierr.Validation("role", "Role must be either 'project_admin' or 'member'")
	}
	return role, nil
}
