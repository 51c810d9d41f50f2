package domain

import "time"

type Status int

const (
	StatusNormal Status = iota
	StatusDisabled
)

func (s Status) String() string {
	if s == StatusDisabled {
		return "disabled"
	}
	return "normal"
}

// PasswordHash is a hash together with the function and salt that produced it.
// The zero value means no password is set.
type PasswordHash struct {
	Function string
	Salt     string
	Value    string
}

func (h PasswordHash) Empty() bool {
	return h.Function == "" && h.Salt == "" && h.Value == ""
}

// Token is the stored form of a random credential: its hash and expiry.
type Token struct {
	Hash    string
	Expires time.Time
}

func (t Token) Empty() bool { return t.Hash == "" }

// EmailTokenRole tells what a mailed token proves once followed.
type EmailTokenRole int

const (
	EmailTokenVerifyEmail EmailTokenRole = iota
	EmailTokenLostPassword
)

func (r EmailTokenRole) String() string {
	if r == EmailTokenLostPassword {
		return "lost_password"
	}
	return "verify_email"
}
