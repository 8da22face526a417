package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	// Username: letters, numbers and underscores only
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

	// Email: basic email validation
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// Rules holds the configurable validation thresholds.
type Rules struct {
	UsernameMinLength      int
	UsernameMaxLength      int
	PasswordMinLength      int
	PasswordRequireUpper   bool
	PasswordRequireLower   bool
	PasswordRequireNumber  bool
	PasswordRequireSpecial bool
}

// DefaultRules returns the stock validation rules.
func DefaultRules() Rules {
	return Rules{
		UsernameMinLength:      3,
		UsernameMaxLength:      50,
		PasswordMinLength:      8,
		PasswordRequireUpper:   true,
		PasswordRequireLower:   true,
		PasswordRequireNumber:  true,
		PasswordRequireSpecial: true,
	}
}

// Result reports whether input was valid and every rule it violated.
type Result struct {
	Valid  bool
	Errors []string
}

type Validator struct {
	rules Rules
}

func New(rules Rules) *Validator {
	return &Validator{rules: rules}
}

// ValidatePassword checks password strength against the configured rules.
// Every violated rule is reported, not just the first.
func (v *Validator) ValidatePassword(password string) Result {
	var errs []string

	if len(password) < v.rules.PasswordMinLength {
		errs = append(errs, fmt.Sprintf("password must be at least %d characters", v.rules.PasswordMinLength))
	}

	var (
		hasUpper   = false
		hasLower   = false
		hasNumber  = false
		hasSpecial = false
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	if v.rules.PasswordRequireUpper && !hasUpper {
		errs = append(errs, "password must contain at least one uppercase letter")
	}
	if v.rules.PasswordRequireLower && !hasLower {
		errs = append(errs, "password must contain at least one lowercase letter")
	}
	if v.rules.PasswordRequireNumber && !hasNumber {
		errs = append(errs, "password must contain at least one number")
	}
	if v.rules.PasswordRequireSpecial && !hasSpecial {
		errs = append(errs, "password must contain at least one special character")
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ValidateUsername checks the username length bounds and character set.
func (v *Validator) ValidateUsername(username string) Result {
	var errs []string

	if len(username) < v.rules.UsernameMinLength || len(username) > v.rules.UsernameMaxLength {
		errs = append(errs, fmt.Sprintf("username must be between %d and %d characters",
			v.rules.UsernameMinLength, v.rules.UsernameMaxLength))
	}

	if !usernameRegex.MatchString(username) {
		errs = append(errs, "username can only contain letters, numbers, and underscores")
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ValidateEmail checks if email format is valid.
func (v *Validator) ValidateEmail(email string) Result {
	var errs []string

	if len(email) == 0 || len(email) > 255 || !emailRegex.MatchString(email) {
		errs = append(errs, "invalid email address")
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ValidateRegistration aggregates username, email and password checks into a
// single result so the caller gets every problem at once.
func (v *Validator) ValidateRegistration(username, email, password string) Result {
	var errs []string

	errs = append(errs, v.ValidateUsername(username).Errors...)
	errs = append(errs, v.ValidateEmail(email).Errors...)
	errs = append(errs, v.ValidatePassword(password).Errors...)

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// SanitizeString removes dangerous characters and null bytes
func (v *Validator) SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Trim whitespace
	input = strings.TrimSpace(input)

	return input
}
