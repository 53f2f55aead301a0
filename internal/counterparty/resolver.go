// Package counterparty determines invoice direction: which extracted entity
// is the user and which is the external counterparty.
package counterparty

import (
	"strings"

	"github.com/quillbooks/quill/internal/fuzzy"
	"github.com/quillbooks/quill/internal/model"
	"github.com/quillbooks/quill/internal/normalize"
)

// MatchMethod names the signal that matched an entity to the user.
type MatchMethod string

const (
	// MatchVat is an exact VAT ID match, the strongest signal.
	MatchVat MatchMethod = "vat"
	// MatchIban matched against manual or source-inferred IBANs.
	MatchIban MatchMethod = "iban"
	// MatchName is a bidirectional name/alias containment match, the weakest.
	MatchName MatchMethod = "name"
	// MatchNone means the entity does not look like the user.
	MatchNone MatchMethod = ""
)

// Resolution is the outcome of resolving issuer and recipient against the
// user's identity.
type Resolution struct {
	Counterparty       model.Entity
	MatchedUserAccount model.UserAccountRole
	Direction          model.InvoiceDirection
	IssuerMethod       MatchMethod
	RecipientMethod    MatchMethod
}

// Resolve decides invoice direction from the extracted issuer/recipient
// entities and the user's own identity data. Pure function.
//
//	issuer=user,  recipient=other -> outgoing, counterparty=recipient
//	issuer=other, recipient=user  -> incoming, counterparty=issuer
//	both match                    -> outgoing (self-invoice default)
//	neither matches               -> unknown, counterparty=issuer
func Resolve(issuer, recipient model.Entity, user *model.UserData) Resolution {
	issuerMethod := matchEntity(issuer, user)
	recipientMethod := matchEntity(recipient, user)

	res := Resolution{IssuerMethod: issuerMethod, RecipientMethod: recipientMethod}
	switch {
	case issuerMethod != MatchNone && recipientMethod == MatchNone:
		res.Direction = model.DirectionOutgoing
		res.Counterparty = recipient
		res.MatchedUserAccount = model.RoleIssuer
	case issuerMethod == MatchNone && recipientMethod != MatchNone:
		res.Direction = model.DirectionIncoming
		res.Counterparty = issuer
		res.MatchedUserAccount = model.RoleRecipient
	case issuerMethod != MatchNone && recipientMethod != MatchNone:
		// Both look like the user: default to a self-issued invoice.
		res.Direction = model.DirectionOutgoing
		res.Counterparty = recipient
		res.MatchedUserAccount = model.RoleIssuer
	default:
		res.Direction = model.DirectionUnknown
		res.Counterparty = issuer
		res.MatchedUserAccount = model.RoleNone
	}
	return res
}

// matchEntity checks an extracted entity against the user's identity in
// priority order: VAT ID, then IBAN (manual and source-inferred), then
// name/alias containment.
func matchEntity(entity model.Entity, user *model.UserData) MatchMethod {
	if entity.IsZero() || user == nil {
		return MatchNone
	}

	if entity.VatID != "" {
		for _, vat := range user.VatIDs {
			if fuzzy.VatIDsMatch(entity.VatID, vat) {
				return MatchVat
			}
		}
	}

	if entity.Iban != "" {
		for _, iban := range user.AllIbans() {
			if fuzzy.IbansMatch(entity.Iban, iban) {
				return MatchIban
			}
		}
	}

	if entity.Name != "" {
		candidates := make([]string, 0, 2+len(user.Aliases))
		if user.Name != "" {
			candidates = append(candidates, user.Name)
		}
		if user.CompanyName != "" {
			candidates = append(candidates, user.CompanyName)
		}
		candidates = append(candidates, user.Aliases...)
		for _, c := range candidates {
			if namesContain(entity.Name, c) {
				return MatchName
			}
		}
	}

	return MatchNone
}

// namesContain is a bidirectional containment check after canonicalization.
func namesContain(a, b string) bool {
	na := normalize.StripLegalSuffixes(a)
	nb := normalize.StripLegalSuffixes(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}
