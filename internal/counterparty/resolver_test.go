package counterparty

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quillbooks/quill/internal/model"
)

func TestResolveUserIsIssuer(t *testing.T) {
	issuer := model.Entity{VatID: "ATU12345678"}
	recipient := model.Entity{Name: "Acme"}
	user := &model.UserData{VatIDs: []string{"ATU12345678"}}

	res := Resolve(issuer, recipient, user)

	assert.Equal(t, model.DirectionOutgoing, res.Direction)
	assert.Equal(t, recipient, res.Counterparty)
	assert.Equal(t, model.RoleIssuer, res.MatchedUserAccount)
	assert.Equal(t, MatchVat, res.IssuerMethod)
}

func TestResolveUserIsRecipient(t *testing.T) {
	issuer := model.Entity{Name: "Foo GmbH"}
	recipient := model.Entity{VatID: "ATU99999999"}
	user := &model.UserData{VatIDs: []string{"ATU99999999"}}

	res := Resolve(issuer, recipient, user)

	assert.Equal(t, model.DirectionIncoming, res.Direction)
	assert.Equal(t, issuer, res.Counterparty)
	assert.Equal(t, model.RoleRecipient, res.MatchedUserAccount)
}

func TestResolveNeitherMatches(t *testing.T) {
	issuer := model.Entity{Name: "Foo GmbH"}
	recipient := model.Entity{Name: "Bar AG"}
	user := &model.UserData{Name: "Jane Doe", VatIDs: []string{"ATU11111111"}}

	res := Resolve(issuer, recipient, user)

	assert.Equal(t, model.DirectionUnknown, res.Direction)
	assert.Equal(t, issuer, res.Counterparty, "issuer is the default counterparty")
	assert.Equal(t, model.RoleNone, res.MatchedUserAccount)
}

func TestResolveBothMatchDefaultsToSelfInvoice(t *testing.T) {
	issuer := model.Entity{VatID: "ATU12345678"}
	recipient := model.Entity{Name: "Jane Doe e.U."}
	user := &model.UserData{Name: "Jane Doe", VatIDs: []string{"ATU12345678"}}

	res := Resolve(issuer, recipient, user)

	assert.Equal(t, model.DirectionOutgoing, res.Direction)
	assert.Equal(t, model.RoleIssuer, res.MatchedUserAccount)
	assert.Equal(t, recipient, res.Counterparty)
}

func TestMatchPriorityVatBeforeIban(t *testing.T) {
	entity := model.Entity{VatID: "ATU12345678", Iban: "AT611904300234573201"}
	user := &model.UserData{
		VatIDs: []string{"ATU12345678"},
		Ibans:  []string{"AT611904300234573201"},
	}
	assert.Equal(t, MatchVat, matchEntity(entity, user))
}

func TestMatchAgainstSourceInferredIban(t *testing.T) {
	entity := model.Entity{Iban: "at61 1904 3002 3457 3201"}
	user := &model.UserData{SourceIbans: []string{"AT611904300234573201"}}
	assert.Equal(t, MatchIban, matchEntity(entity, user))
}

func TestMatchNameBidirectionalContainment(t *testing.T) {
	user := &model.UserData{CompanyName: "Jane Doe Consulting GmbH"}

	// Extracted name contains the user's name.
	assert.Equal(t, MatchName, matchEntity(model.Entity{Name: "Jane Doe Consulting"}, user))
	// User name contains the extracted name.
	assert.Equal(t, MatchName, matchEntity(model.Entity{Name: "Jane Doe Consulting GmbH & Co KG"}, user))
	// Alias match.
	aliased := &model.UserData{Name: "Jane Doe", Aliases: []string{"JD Consulting"}}
	assert.Equal(t, MatchName, matchEntity(model.Entity{Name: "JD Consulting e.U."}, aliased))
}

func TestEmptyEntityNeverMatches(t *testing.T) {
	user := &model.UserData{Name: "Jane Doe"}
	assert.Equal(t, MatchNone, matchEntity(model.Entity{}, user))
}
