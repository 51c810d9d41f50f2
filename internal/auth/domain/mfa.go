package domain

// MFAEnrollment is a TOTP secret offered to a user. It is inactive until a
// code generated from it is confirmed.
type MFAEnrollment struct {
	Secret string // base32
	URL    string // otpauth:// URL for QR codes
}
