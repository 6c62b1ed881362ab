// Package main is the DigitalPass terminal client: it registers and logs in,
// walks the application wizard, pays for the pass and shows the pass card.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/DigitalPass/internal/card"
	"github.com/atinyakov/DigitalPass/internal/client/storage"
	"github.com/atinyakov/DigitalPass/internal/models"
)

var (
	version   string
	buildDate string
)

const help = `Available commands:
  register   create an account
  login      sign in
  apply      fill in and submit a bus pass application
  pay        pay for the submitted application
  abandon    discard the current application
  status     list your applications
  pass       show your pass
  card       save the printable pass card
  logout     sign out
  exit       quit`

type shell struct {
	api    *storage.Client
	ls     *storage.LocalStorage
	prompt *storage.Prompter
	out    io.Writer
}

// repl runs the interactive shell loop.
func (s *shell) repl() {
	for {
		line, err := s.prompt.Line("digitalpass>")
		if err != nil {
			return
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "help":
			fmt.Fprintln(s.out, help)
		case "register":
			s.report(s.register())
		case "login":
			s.report(s.login())
		case "apply":
			s.report(s.apply())
		case "pay":
			s.report(s.pay())
		case "abandon":
			s.report(s.api.Abandon())
		case "status":
			s.report(s.status())
		case "pass":
			s.report(s.showPass())
		case "card":
			s.report(s.saveCard())
		case "logout":
			s.report(s.logout())
		case "exit":
			fmt.Fprintln(s.out, "Bye")
			return
		default:
			fmt.Fprintln(s.out, "Unknown command. Type 'help' for a list of commands.")
		}
	}
}

func (s *shell) report(err error) {
	if err != nil {
		fmt.Fprintln(s.out, "Error:", err)
	}
}

func (s *shell) register() error {
	name, err := s.prompt.Line("Full name")
	if err != nil {
		return err
	}
	email, err := s.prompt.Line("Email")
	if err != nil {
		return err
	}
	mobile, err := s.prompt.Line("Mobile")
	if err != nil {
		return err
	}
	password, err := s.prompt.Secret("Password")
	if err != nil {
		return err
	}
	if err := s.api.Register(name, email, mobile, password); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Registration successful. Please login.")
	return nil
}

func (s *shell) login() error {
	email, err := s.prompt.Line("Email")
	if err != nil {
		return err
	}
	password, err := s.prompt.Secret("Password")
	if err != nil {
		return err
	}
	res, err := s.api.Login(email, password)
	if err != nil {
		return err
	}
	s.ls.SetSession(res.User.Email, res.Token, res.ExpiresAt)
	if err := s.ls.Save(); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Welcome, %s\n", res.User.FullName)

	// the home screen shows the pass when there is one
	if err := s.showPass(); err != nil && !storage.IsStatus(err, http.StatusNotFound) {
		return err
	}
	return nil
}

func (s *shell) logout() error {
	err := s.api.Logout()
	s.ls.ClearSession()
	if saveErr := s.ls.Save(); saveErr != nil {
		return saveErr
	}
	return err
}

// apply walks the wizard from wherever the server has it.
func (s *shell) apply() error {
	locations, durations, err := s.api.Locations()
	if err != nil {
		return err
	}
	view, err := s.api.Wizard()
	if err != nil {
		return err
	}
	for {
		switch view.State {
		case "personal":
			view, err = s.personal(view.Draft.Personal)
		case "education":
			view, err = s.education(view.Draft.Education, locations)
		case "travel":
			view, err = s.travel(view.Draft.Travel, locations, durations)
		case "review":
			return s.review(view.Draft)
		case "committed":
			fmt.Fprintln(s.out, "Application submitted. Use 'pay' to complete payment.")
			return nil
		default:
			return fmt.Errorf("unexpected wizard state %q", view.State)
		}
		if err != nil {
			var apiErr *storage.APIError
			if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnprocessableEntity {
				return err
			}
			fmt.Fprintln(s.out, err)
			if view, err = s.api.Wizard(); err != nil {
				return err
			}
		}
	}
}

func (s *shell) personal(p models.PersonalDetails) (storage.WizardView, error) {
	fmt.Fprintln(s.out, "Step 1 of 3: Personal Details")
	var err error
	if p.FullName, err = s.prompt.Default("Full name", p.FullName); err != nil {
		return storage.WizardView{}, err
	}
	if p.Mobile, err = s.prompt.Default("Mobile", p.Mobile); err != nil {
		return storage.WizardView{}, err
	}
	if p.Email, err = s.prompt.Default("Email", p.Email); err != nil {
		return storage.WizardView{}, err
	}
	if _, err := s.api.UpdatePersonal(p); err != nil {
		return storage.WizardView{}, err
	}
	label := "Photo file"
	if p.Photo != "" {
		label = "Photo file (empty keeps the uploaded one)"
	}
	path, err := s.prompt.Line(label)
	if err != nil {
		return storage.WizardView{}, err
	}
	if path != "" {
		if _, err := s.api.UploadPhoto(path); err != nil {
			return storage.WizardView{}, err
		}
	}
	return s.api.Next()
}

func (s *shell) education(e models.EducationDetails, locations []string) (storage.WizardView, error) {
	fmt.Fprintln(s.out, "Step 2 of 3: Education Details")
	var err error
	if e.CollegeName, err = s.prompt.Default("College name", e.CollegeName); err != nil {
		return storage.WizardView{}, err
	}
	if e.Branch, err = s.prompt.Default("Branch/Specialization", e.Branch); err != nil {
		return storage.WizardView{}, err
	}
	if e.CollegeLocation, err = s.prompt.Choice("College location", locations, e.CollegeLocation); err != nil {
		return storage.WizardView{}, err
	}
	if _, err := s.api.UpdateEducation(e); err != nil {
		return storage.WizardView{}, err
	}
	return s.api.Next()
}

func (s *shell) travel(t models.TravelDetails, locations []string, durations []int) (storage.WizardView, error) {
	fmt.Fprintln(s.out, "Step 3 of 3: Travel Details")
	var err error
	if t.FromAddress, err = s.prompt.Choice("From", locations, t.FromAddress); err != nil {
		return storage.WizardView{}, err
	}
	if t.ToAddress, err = s.prompt.Choice("To", locations, t.ToAddress); err != nil {
		return storage.WizardView{}, err
	}
	current := ""
	if t.Duration != 0 {
		current = strconv.Itoa(int(t.Duration))
	}
	choices := make([]string, len(durations))
	for i, d := range durations {
		choices[i] = strconv.Itoa(d)
	}
	fmt.Fprintln(s.out, "Duration in months:")
	v, err := s.prompt.Default("Duration ("+strings.Join(choices, "/")+")", current)
	if err != nil {
		return storage.WizardView{}, err
	}
	n, _ := strconv.Atoi(v)
	t.Duration = models.Duration(n)
	if _, err := s.api.UpdateTravel(t); err != nil {
		return storage.WizardView{}, err
	}
	return s.api.Next()
}

func (s *shell) review(d models.Draft) error {
	fmt.Fprintln(s.out, "Review Application")
	fmt.Fprintf(s.out, "  Name:      %s\n  Mobile:    %s\n  Email:     %s\n", d.Personal.FullName, d.Personal.Mobile, d.Personal.Email)
	fmt.Fprintf(s.out, "  College:   %s, %s (%s)\n", d.Education.CollegeName, d.Education.Branch, d.Education.CollegeLocation)
	fmt.Fprintf(s.out, "  Route:     %s -> %s\n  Duration:  %d Month(s)\n", d.Travel.FromAddress, d.Travel.ToAddress, d.Travel.Duration)

	answer, err := s.prompt.Line("Confirm & Pay? (y = confirm, b = back)")
	if err != nil {
		return err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		app, err := s.api.Confirm()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Application %s submitted.\n", app.ApplicationID)
		return s.pay()
	case "b", "back":
		if _, err := s.api.Back(); err != nil {
			return err
		}
		return s.apply()
	default:
		fmt.Fprintln(s.out, "Application kept for review.")
		return nil
	}
}

func (s *shell) pay() error {
	view, err := s.api.StartPayment()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Payment for application %s\n", view.ApplicationID)
	for {
		pin, err := s.prompt.Secret("Enter 4-digit PIN")
		if err != nil {
			return err
		}
		if _, err := s.api.EnterPIN(pin); err != nil {
			fmt.Fprintln(s.out, err)
			continue
		}
		fmt.Fprintln(s.out, "Processing payment...")
		rec, err := s.api.Pay()
		switch {
		case err == nil:
			fmt.Fprintln(s.out, "Payment successful!")
			s.ls.SetPass(rec)
			if err := s.ls.Save(); err != nil {
				return err
			}
			fmt.Fprintln(s.out, card.Render(rec, time.Now()))
			return nil
		case storage.IsStatus(err, http.StatusUnprocessableEntity):
			fmt.Fprintln(s.out, err)
		case storage.IsStatus(err, http.StatusPaymentRequired):
			fmt.Fprintln(s.out, "Payment failed:", err)
			answer, perr := s.prompt.Line("Retry? (y/n)")
			if perr != nil || !strings.EqualFold(answer, "y") {
				return nil
			}
			if _, err := s.api.RetryPayment(); err != nil {
				return err
			}
		default:
			return err
		}
	}
}

func (s *shell) status() error {
	apps, err := s.api.Applications()
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		fmt.Fprintln(s.out, "No applications yet. Use 'apply' to start one.")
		return nil
	}
	for _, a := range apps {
		fmt.Fprintf(s.out, "%s  %-8s  applied %s  %s\n", a.ApplicationID, a.Status, a.AppliedAt.Format("02 Jan 2006"), a.PassNumber)
	}
	return nil
}

func (s *shell) showPass() error {
	rec, err := s.api.Pass()
	if err != nil {
		if !storage.IsStatus(err, http.StatusNotFound) {
			if cached := s.ls.State().Pass; cached != nil {
				fmt.Fprintln(s.out, "Server unavailable, showing the saved pass.")
				fmt.Fprintln(s.out, card.Render(*cached, time.Now()))
				return nil
			}
		}
		return err
	}
	s.ls.SetPass(rec)
	if err := s.ls.Save(); err != nil {
		return err
	}
	fmt.Fprintln(s.out, card.Render(rec, time.Now()))
	return nil
}

func (s *shell) saveCard() error {
	name, data, err := s.api.Card()
	if err != nil {
		return err
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Saved %s\n", name)
	return nil
}

// main parses command-line flags and starts the shell.
func main() {
	var (
		baseURL   string
		stateFile string
		showVer   bool
	)

	flag.StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	flag.StringVar(&stateFile, "state", storage.DefaultFile, "path to the local state file")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("DigitalPass Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	ls := storage.NewLocalStorage(stateFile)
	if err := ls.Load(); err != nil {
		log.Fatal(err)
	}
	api := storage.NewClient(baseURL)
	if token, ok := ls.Token(time.Now()); ok {
		api.Token = token
	}

	sh := &shell{
		api:    api,
		ls:     ls,
		prompt: storage.NewPrompter(os.Stdin, os.Stdout),
		out:    os.Stdout,
	}
	fmt.Fprintln(sh.out, "DigitalPass. Type 'help' for a list of commands.")
	sh.repl()
}
