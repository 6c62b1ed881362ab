// Package card renders an issued pass as a printable text card.
package card

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/atinyakov/DigitalPass/internal/models"
)

const dateLayout = "02 Jan 2006"

var (
	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 3)

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	activeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	expiredStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("160"))
	numberStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
)

// FileName is the download name of the card for a pass number.
func FileName(passNumber string) string {
	return "DigitalPass_" + passNumber + ".txt"
}

// Render draws rec as it stands at now.
func Render(rec models.PassRecord, now time.Time) string {
	status := activeStyle.Render("ACTIVE PASS")
	if !now.Before(rec.ValidTo) {
		status = expiredStyle.Render("EXPIRED")
	}

	header := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("DigitalPass"),
		subtleStyle.Render("Telangana State Bus Pass"),
		status,
	)

	issued := ""
	if rec.PaymentDate != nil {
		issued = rec.PaymentDate.Format(dateLayout)
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		row("Pass Number", numberStyle.Render(rec.PassNumber)),
		"",
		headingStyle.Render("Personal Details"),
		row("Full Name", rec.Personal.FullName),
		row("Mobile", rec.Personal.Mobile),
		row("Email", rec.Personal.Email),
		"",
		headingStyle.Render("Education Details"),
		row("College Name", rec.Education.CollegeName),
		row("Branch", rec.Education.Branch),
		row("Location", rec.Education.CollegeLocation),
		"",
		headingStyle.Render("Travel Details"),
		row("From", rec.Travel.FromAddress),
		row("To", rec.Travel.ToAddress),
		row("Duration", fmt.Sprintf("%d Month(s)", rec.Travel.Duration)),
		row("Issue Date", issued),
		"",
		row("Valid", fmt.Sprintf("%s - %s", rec.ValidFrom.Format(dateLayout), rec.ValidTo.Format(dateLayout))),
	)
	return frameStyle.Render(body)
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), strings.TrimSpace(value))
}
