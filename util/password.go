package util

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// PasswordPolicy defines password complexity requirements for signup.
type PasswordPolicy struct {
	MinLength      int // Minimum password length (default: 12)
	MaxLength      int // Maximum password length, prevents bcrypt DoS (default: 128)
	RequireClasses int // Number of character classes required (default: 3 of 4)
}

// DefaultPasswordPolicy returns the default password policy.
func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:      12,
		MaxLength:      128,
		RequireClasses: 3,
	}
}

var (
	upperRe   = regexp.MustCompile(`[A-Z]`)
	lowerRe   = regexp.MustCompile(`[a-z]`)
	digitRe   = regexp.MustCompile(`[0-9]`)
	specialRe = regexp.MustCompile(`[^A-Za-z0-9]`)
	controlRe = regexp.MustCompile(`[\x00-\x1F\x7F-\x9F]`)
)

// countCharacterClasses reports which of the four character classes appear in
// the password.
func countCharacterClasses(password string) int {
	classes := 0
	if upperRe.MatchString(password) {
		classes++
	}
	if lowerRe.MatchString(password) {
		classes++
	}
	if digitRe.MatchString(password) {
		classes++
	}
	if specialRe.MatchString(password) {
		classes++
	}
	return classes
}

// containsEmailLocalPart checks whether the password embeds the account's
// email local part ("ana" from "ana@example.com"), forwards or reversed.
func containsEmailLocalPart(password, email string) bool {
	local, _, found := strings.Cut(email, "@")
	if !found || len(local) < 3 {
		return false
	}

	passwordLower := strings.ToLower(password)
	localLower := strings.ToLower(local)

	if strings.Contains(passwordLower, localLower) {
		return true
	}
	return strings.Contains(passwordLower, reverseString(localLower))
}

func reverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// Validate checks a password against the policy.
func (p *PasswordPolicy) Validate(password, email string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}

	if len(password) < p.MinLength {
		return fmt.Errorf("password must be at least %d characters long", p.MinLength)
	}
	if p.MaxLength > 0 && len(password) > p.MaxLength {
		return fmt.Errorf("password must be no more than %d characters long", p.MaxLength)
	}

	if controlRe.MatchString(password) {
		return errors.New("password contains invalid control characters")
	}

	if countCharacterClasses(password) < p.RequireClasses {
		return fmt.Errorf("password must contain at least %d of the following: uppercase letters, lowercase letters, digits, special characters", p.RequireClasses)
	}

	if containsEmailLocalPart(password, email) {
		return errors.New("password cannot contain your email address")
	}

	return nil
}
