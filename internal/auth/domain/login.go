package domain

type LoginState int

const (
	LoggedOut LoginState = iota
	Disabled
	WeakLogin
	StrongLogin
	RequiresMfa
)

func (s LoginState) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case WeakLogin:
		return "weak"
	case StrongLogin:
		return "strong"
	case RequiresMfa:
		return "requires_mfa"
	default:
		return "logged_out"
	}
}
