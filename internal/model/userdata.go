package model

// UserData is the user's own identity: everything the counterparty resolver
// needs to tell "this is me" apart from "this is the counterparty."
type UserData struct {
	UserID      string
	Name        string
	CompanyName string
	Aliases     []string
	VatIDs      []string
	Ibans       []string // manually entered
	SourceIbans []string // inferred from connected bank sources
	OwnEmails   []string
}

// IdentityEquals reports whether the identity-relevant fields are unchanged.
// A change to any of them must trigger counterparty re-evaluation for all
// extracted files.
func (u *UserData) IdentityEquals(other *UserData) bool {
	if other == nil {
		return false
	}
	return u.Name == other.Name &&
		u.CompanyName == other.CompanyName &&
		equalStrings(u.Aliases, other.Aliases) &&
		equalStrings(u.VatIDs, other.VatIDs) &&
		equalStrings(u.Ibans, other.Ibans) &&
		equalStrings(u.SourceIbans, other.SourceIbans) &&
		equalStrings(u.OwnEmails, other.OwnEmails)
}

// AllIbans returns manual and source-inferred IBANs combined.
func (u *UserData) AllIbans() []string {
	out := make([]string, 0, len(u.Ibans)+len(u.SourceIbans))
	out = append(out, u.Ibans...)
	out = append(out, u.SourceIbans...)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
