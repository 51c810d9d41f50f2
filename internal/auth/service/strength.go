package service

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// StrengthValidator rejects weak passwords. The zero value uses the default
// policy: at least 8 characters, at most 128, not trivially guessable and not
// equal to the login name or email.
type StrengthValidator struct {
	MinLength int
	MaxLength int
}

// StrengthResult explains a rejection in Reason.
type StrengthResult struct {
	Valid  bool
	Reason string
}

var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"123456":      {},
	"12345678":    {},
	"123456789":   {},
	"qwerty":      {},
	"qwerty123":   {},
	"11111111":    {},
	"letmein":     {},
	"iloveyou":    {},
}

func (v StrengthValidator) Evaluate(password, loginName, email string) StrengthResult {
	minLen, maxLen := v.MinLength, v.MaxLength
	if minLen <= 0 {
		minLen = 8
	}
	if maxLen <= 0 {
		maxLen = 128
	}

	n := utf8.RuneCountInString(password)
	switch {
	case n < minLen:
		return StrengthResult{Reason: "password is too short"}
	case n > maxLen:
		return StrengthResult{Reason: "password is too long"}
	}

	lower := strings.ToLower(password)
	if loginName != "" && lower == strings.ToLower(loginName) {
		return StrengthResult{Reason: "password must differ from the login name"}
	}
	if email != "" && lower == strings.ToLower(email) {
		return StrengthResult{Reason: "password must differ from the email address"}
	}
	if _, ok := commonPasswords[lower]; ok || veryWeak(password) {
		return StrengthResult{Reason: "password is too easy to guess"}
	}
	return StrengthResult{Valid: true}
}

func veryWeak(pw string) bool {
	first, _ := utf8.DecodeRuneInString(pw)
	allSame, onlyDigits := true, true
	for _, r := range pw {
		if r != first {
			allSame = false
		}
		if !unicode.IsDigit(r) {
			onlyDigits = false
		}
	}
	return allSame || (onlyDigits && utf8.RuneCountInString(pw) < 12)
}
