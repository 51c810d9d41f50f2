package domain

import "fmt"

// ProviderLoginName is the provider of identities that are plain login names
// or email addresses, authenticated by password.
const ProviderLoginName = "loginname"

// Identity is what an authentication method knows about a user. An empty ID
// marks the invalid identity.
type Identity struct {
	Provider      string
	ID            string
	Name          string
	Email         string
	EmailVerified bool
}

func (i Identity) Valid() bool { return i.ID != "" }

// IdentityPolicy decides what a user types to log in with a password.
type IdentityPolicy int

const (
	LoginNameIdentity IdentityPolicy = iota
	EmailAddressIdentity
	OptionalIdentity
)

func (p IdentityPolicy) String() string {
	switch p {
	case EmailAddressIdentity:
		return "email"
	case OptionalIdentity:
		return "optional"
	default:
		return "loginname"
	}
}

func ParseIdentityPolicy(s string) (IdentityPolicy, error) {
	switch s {
	case "loginname":
		return LoginNameIdentity, nil
	case "email":
		return EmailAddressIdentity, nil
	case "optional":
		return OptionalIdentity, nil
	}
	return 0, fmt.Errorf("unknown identity policy %q", s)
}
