package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/acquisition-cli/internal/model"
)

func newAdmitter() (*Admitter, *memAccounts, *memLayer) {
	cands := newMemLayer(model.LayerCandidate)
	accts := newMemAccounts(cands)
	r := NewResolver(Options{}, cands, newMemLayer(model.LayerProspect), newMemLayer(model.LayerApplication))
	return NewAdmitter(r, accts), accts, cands
}

func TestAdmit_Created(t *testing.T) {
	a, accts, _ := newAdmitter()

	adm, err := a.Admit(context.Background(), model.Candidate{
		Platform: model.PlatformInstagram, Handle: "@Anna.Fit", Source: model.SourceTag, Country: "de",
	})
	require.NoError(t, err)
	assert.Equal(t, Created, adm.Outcome)
	assert.Equal(t, "anna.fit", adm.Candidate.Handle)
	assert.Equal(t, "DE", adm.Candidate.Country)
	assert.True(t, adm.Candidate.Active)
	assert.NotZero(t, adm.Candidate.ID)
	assert.Equal(t, 1, accts.count())
}

func TestAdmit_SameCountryIsNoop(t *testing.T) {
	a, accts, _ := newAdmitter()
	existing := accts.seed(model.Candidate{Platform: model.PlatformInstagram, Handle: "anna", Country: "DE"})

	adm, err := a.Admit(context.Background(), model.Candidate{
		Platform: model.PlatformInstagram, Handle: "ANNA", Country: "DE",
	})
	require.NoError(t, err)
	assert.Equal(t, Existing, adm.Outcome)
	assert.Equal(t, existing.ID, adm.Candidate.ID)
	assert.Equal(t, 1, accts.count())
	assert.Equal(t, "DE", accts.countries[existing.ID])
}

func TestAdmit_DifferentCountryReassigns(t *testing.T) {
	a, accts, _ := newAdmitter()
	existing := accts.seed(model.Candidate{Platform: model.PlatformInstagram, Handle: "anna", Country: "DE"})

	adm, err := a.Admit(context.Background(), model.Candidate{
		Platform: model.PlatformInstagram, Handle: "anna", Country: "AT",
	})
	require.NoError(t, err)
	assert.Equal(t, Reassigned, adm.Outcome)
	assert.Equal(t, "AT", accts.countries[existing.ID])
	assert.Equal(t, 1, accts.count())
}

func TestAdmit_SameHandleOtherPlatformIsNew(t *testing.T) {
	a, accts, _ := newAdmitter()
	accts.seed(model.Candidate{Platform: model.PlatformInstagram, Handle: "anna", Country: "DE"})

	adm, err := a.Admit(context.Background(), model.Candidate{
		Platform: model.PlatformTikTok, Handle: "anna", Country: "DE",
	})
	require.NoError(t, err)
	assert.Equal(t, Created, adm.Outcome)
	assert.Equal(t, 2, accts.count())
}

func TestAdmit_Invalid(t *testing.T) {
	a, accts, _ := newAdmitter()

	adm, err := a.Admit(context.Background(), model.Candidate{Platform: model.PlatformInstagram, Handle: "  @ "})
	require.NoError(t, err)
	assert.Equal(t, Invalid, adm.Outcome)
	assert.Zero(t, accts.count())
}

func TestImport_BatchAndStoreDuplicates(t *testing.T) {
	a, accts, _ := newAdmitter()
	accts.seed(model.Candidate{Platform: model.PlatformInstagram, Handle: "known", Country: "DE"})
	accts.seed(model.Candidate{Platform: model.PlatformInstagram, Handle: "mover", Country: "FR"})

	res, err := a.Import(context.Background(), ImportRequest{
		Values: []string{
			"https://www.instagram.com/fresh/",
			"@Fresh",
			"fresh",
			"https://www.tiktok.com/@fresh",
			"known",
			"mover",
			"%%%",
		},
		Platform: model.PlatformInstagram,
		Country:  "DE",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ImportResult{
		Created:                2,
		Updated:                1,
		BatchDuplicatesSkipped: 2,
		StoreDuplicatesSkipped: 1,
		Invalid:                1,
	}, res)
	assert.Equal(t, 4, accts.count())

	c, err := accts.GetByHandle(context.Background(), model.PlatformTikTok, "fresh")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, model.SourceImport, c.Source)
}

func TestImport_ConcurrentWriterCountsAsStoreDuplicate(t *testing.T) {
	a, accts, _ := newAdmitter()
	accts.preempt[key(model.PlatformInstagram, "raced")] = true

	res, err := a.Import(context.Background(), ImportRequest{
		Values:   []string{"raced", "clean"},
		Platform: model.PlatformInstagram,
		Country:  "DE",
		Source:   "partner",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.StoreDuplicatesSkipped)
}

func TestImport_UnknownPlatformIsInvalid(t *testing.T) {
	a, _, _ := newAdmitter()

	res, err := a.Import(context.Background(), ImportRequest{Values: []string{"bare"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Invalid)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "reassigned", Reassigned.String())
	assert.Equal(t, "existing", Existing.String())
	assert.Equal(t, "invalid", Invalid.String())
}
