package models

import "testing"

func TestDuration_Valid(t *testing.T) {
	cases := map[Duration]bool{0: false, 1: true, 2: false, 3: true, 6: true, 12: true, 24: false, -1: false}
	for d, want := range cases {
		if got := d.Valid(); got != want {
			t.Errorf("Duration(%d).Valid() = %v; want %v", d, got, want)
		}
	}
}

func TestSectionID_String(t *testing.T) {
	tests := []struct {
		id   SectionID
		want string
	}{
		{SectionPersonal, "personal"},
		{SectionEducation, "education"},
		{SectionTravel, "travel"},
		{SectionID(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.id.String(); got != tt.want {
			t.Errorf("SectionID(%d).String() = %q; want %q", tt.id, got, tt.want)
		}
	}
}

func TestSections_ReportTheirID(t *testing.T) {
	if (PersonalDetails{}).Section() != SectionPersonal {
		t.Error("PersonalDetails should be section 1")
	}
	if (EducationDetails{}).Section() != SectionEducation {
		t.Error("EducationDetails should be section 2")
	}
	if (TravelDetails{}).Section() != SectionTravel {
		t.Error("TravelDetails should be section 3")
	}
}
