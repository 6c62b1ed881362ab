package models

import "time"

// SectionID identifies one of the three application sections.
type SectionID int

const (
	// SectionPersonal is the personal details section.
	SectionPersonal SectionID = 1
	// SectionEducation is the education details section.
	SectionEducation SectionID = 2
	// SectionTravel is the bus pass (route and duration) section.
	SectionTravel SectionID = 3
)

// String returns the section name used in API paths.
func (s SectionID) String() string {
	switch s {
	case SectionPersonal:
		return "personal"
	case SectionEducation:
		return "education"
	case SectionTravel:
		return "travel"
	}
	return "unknown"
}

// Section is implemented by the field set of each application section.
type Section interface {
	Section() SectionID
}

// PersonalDetails holds section 1 fields.
type PersonalDetails struct {
	FullName string `json:"fullName" validate:"notblank"`
	Mobile   string `json:"mobile" validate:"notblank,mobile"`
	Email    string `json:"email" validate:"notblank,emailaddr"`
	// Photo is an image data URL produced by the photo intake.
	Photo string `json:"photo" validate:"required"`
}

// Section implements Section.
func (PersonalDetails) Section() SectionID { return SectionPersonal }

// EducationDetails holds section 2 fields.
type EducationDetails struct {
	CollegeName     string `json:"collegeName" validate:"notblank"`
	Branch          string `json:"branch" validate:"notblank"`
	CollegeLocation string `json:"collegeLocation" validate:"notblank"`
}

// Section implements Section.
func (EducationDetails) Section() SectionID { return SectionEducation }

// TravelDetails holds section 3 fields.
type TravelDetails struct {
	FromAddress string   `json:"fromAddress" validate:"notblank"`
	ToAddress   string   `json:"toAddress" validate:"notblank"`
	Duration    Duration `json:"duration" validate:"required,oneof=1 3 6 12"`
}

// Section implements Section.
func (TravelDetails) Section() SectionID { return SectionTravel }

// Duration is a pass duration in calendar months.
type Duration int

// Durations lists the pass durations that can be purchased.
var Durations = []Duration{1, 3, 6, 12}

// Valid reports whether d is one of Durations.
func (d Duration) Valid() bool {
	for _, v := range Durations {
		if d == v {
			return true
		}
	}
	return false
}

// Draft is an in-progress application owned by the wizard until it is committed.
type Draft struct {
	UserID    string           `json:"userId"`
	Personal  PersonalDetails  `json:"personal"`
	Education EducationDetails `json:"education"`
	Travel    TravelDetails    `json:"travel"`
}

// Status is the lifecycle state of a PassApplication.
type Status string

const (
	// StatusPending is set when a draft is committed for payment.
	StatusPending Status = "pending"
	// StatusApproved is set by a successful payment authorization.
	StatusApproved Status = "approved"
)

// PassApplication is the durable record of a committed draft.
type PassApplication struct {
	Draft
	ApplicationID string    `json:"applicationId"`
	Status        Status    `json:"status"`
	AppliedAt     time.Time `json:"appliedAt"`
	// PaymentDate and PassNumber are set only on approval.
	PaymentDate *time.Time `json:"paymentDate,omitempty"`
	PassNumber  string     `json:"passNumber,omitempty"`
}

// PassRecord is the read-only view of an approved application.
// ValidFrom and ValidTo are derived and never stored.
type PassRecord struct {
	PassApplication
	ValidFrom time.Time `json:"validFrom"`
	ValidTo   time.Time `json:"validTo"`
}
