package card

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/DigitalPass/internal/issuance"
	"github.com/atinyakov/DigitalPass/internal/models"
)

func approved(t *testing.T) models.PassRecord {
	t.Helper()
	paid := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	rec, err := issuance.Record(models.PassApplication{
		Draft: models.Draft{
			UserID:    "u1",
			Personal:  models.PersonalDetails{FullName: "Ravi Kumar", Mobile: "9876543210", Email: "ravi@example.com"},
			Education: models.EducationDetails{CollegeName: "JNTU", Branch: "CSE", CollegeLocation: "Hyderabad"},
			Travel:    models.TravelDetails{FromAddress: "Kukatpally", ToAddress: "Ameerpet", Duration: 1},
		},
		ApplicationID: "a1",
		Status:        models.StatusApproved,
		PaymentDate:   &paid,
		PassNumber:    "TS12345678ABCD",
	})
	require.NoError(t, err)
	return rec
}

func TestRender(t *testing.T) {
	rec := approved(t)
	out := Render(rec, rec.ValidFrom.Add(time.Hour))

	for _, want := range []string{
		"DigitalPass", "ACTIVE PASS", "TS12345678ABCD", "Ravi Kumar", "9876543210",
		"JNTU", "Kukatpally", "Ameerpet", "1 Month(s)", "31 Jan 2024", "29 Feb 2024",
	} {
		assert.True(t, strings.Contains(out, want), "card is missing %q", want)
	}
}

func TestRender_Expired(t *testing.T) {
	rec := approved(t)
	out := Render(rec, rec.ValidTo)
	assert.Contains(t, out, "EXPIRED")
	assert.NotContains(t, out, "ACTIVE PASS")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "DigitalPass_TS1.txt", FileName("TS1"))
}
