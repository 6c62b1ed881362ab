package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/atinyakov/DigitalPass/internal/models"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

// Error returns the server message followed by any field errors.
func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %s", k, e.Fields[k]))
	}
	return e.Message + "\n" + strings.Join(lines, "\n")
}

// Client talks to the DigitalPass API.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Token   string
}

// NewClient returns a Client for baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		BaseURL: strings.TrimRight(baseURL, "/"),
	}
}

// LoginResult is the reply to a successful login.
type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

// Register creates an account.
func (c *Client) Register(fullName, email, mobile, password string) error {
	body := map[string]string{"fullName": fullName, "email": email, "mobile": mobile, "password": password}
	return c.call(http.MethodPost, "/api/register", body, nil)
}

// Login opens a session and keeps its token on the client.
func (c *Client) Login(email, password string) (LoginResult, error) {
	var res LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.call(http.MethodPost, "/api/login", body, &res); err != nil {
		return LoginResult{}, err
	}
	c.Token = res.Token
	return res, nil
}

// Logout ends the session.
func (c *Client) Logout() error {
	err := c.call(http.MethodPost, "/api/logout", nil, nil)
	c.Token = ""
	return err
}

// Locations lists the selectable locations and pass durations.
func (c *Client) Locations() ([]string, []int, error) {
	var res struct {
		Locations []string `json:"locations"`
		Durations []int    `json:"durations"`
	}
	if err := c.call(http.MethodGet, "/api/locations", nil, &res); err != nil {
		return nil, nil, err
	}
	return res.Locations, res.Durations, nil
}

// Wizard returns the current wizard, starting one when none is open.
func (c *Client) Wizard() (WizardView, error) {
	return c.wizard(http.MethodGet, "/api/application", nil)
}

// UpdatePersonal stores the personal section.
func (c *Client) UpdatePersonal(p models.PersonalDetails) (WizardView, error) {
	return c.wizard(http.MethodPut, "/api/application/personal", p)
}

// UpdateEducation stores the education section.
func (c *Client) UpdateEducation(e models.EducationDetails) (WizardView, error) {
	return c.wizard(http.MethodPut, "/api/application/education", e)
}

// UpdateTravel stores the travel section.
func (c *Client) UpdateTravel(t models.TravelDetails) (WizardView, error) {
	return c.wizard(http.MethodPut, "/api/application/travel", t)
}

// Next advances the wizard when the current section is valid.
func (c *Client) Next() (WizardView, error) {
	return c.wizard(http.MethodPost, "/api/application/next", nil)
}

// Back returns to the previous section.
func (c *Client) Back() (WizardView, error) {
	return c.wizard(http.MethodPost, "/api/application/back", nil)
}

// UploadPhoto sends the image file at path as the applicant photo.
func (c *Client) UploadPhoto(path string) (WizardView, error) {
	f, err := os.Open(path)
	if err != nil {
		return WizardView{}, fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("photo", filepath.Base(path))
	if err != nil {
		return WizardView{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return WizardView{}, fmt.Errorf("read photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return WizardView{}, err
	}

	req, err := c.newRequest(http.MethodPost, "/api/application/photo", &buf)
	if err != nil {
		return WizardView{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var view WizardView
	return view, c.do(req, &view)
}

// Confirm commits the reviewed draft.
func (c *Client) Confirm() (models.PassApplication, error) {
	var app models.PassApplication
	return app, c.call(http.MethodPost, "/api/application/confirm", nil, &app)
}

// Abandon discards the draft and any unpaid application.
func (c *Client) Abandon() error {
	return c.call(http.MethodDelete, "/api/application", nil, nil)
}

// Applications lists the user's applications.
func (c *Client) Applications() ([]models.PassApplication, error) {
	var apps []models.PassApplication
	return apps, c.call(http.MethodGet, "/api/applications", nil, &apps)
}

// StartPayment opens PIN entry for the pending application.
func (c *Client) StartPayment() (PaymentView, error) {
	return c.payment(http.MethodPost, "/api/payment/start", nil)
}

// EnterPIN replaces whatever was typed with pin.
func (c *Client) EnterPIN(pin string) (PaymentView, error) {
	view, err := c.payment(http.MethodGet, "/api/payment", nil)
	if err != nil {
		return PaymentView{}, err
	}
	for range view.Digits {
		if view, err = c.payment(http.MethodDelete, "/api/payment/pin", nil); err != nil {
			return PaymentView{}, err
		}
	}
	return c.payment(http.MethodPost, "/api/payment/pin", map[string]string{"digits": pin})
}

// Pay submits the entered PIN and waits for the issued pass.
func (c *Client) Pay() (models.PassRecord, error) {
	var rec models.PassRecord
	return rec, c.call(http.MethodPost, "/api/payment/submit", nil, &rec)
}

// RetryPayment returns a failed payment to PIN entry.
func (c *Client) RetryPayment() (PaymentView, error) {
	return c.payment(http.MethodPost, "/api/payment/retry", nil)
}

// Pass fetches the user's current pass.
func (c *Client) Pass() (models.PassRecord, error) {
	var rec models.PassRecord
	return rec, c.call(http.MethodGet, "/api/pass", nil, &rec)
}

// Card downloads the printable card and its file name.
func (c *Client) Card() (string, []byte, error) {
	req, err := c.newRequest(http.MethodGet, "/api/pass/card", nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("download card: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, decodeError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("download card: %w", err)
	}
	name := "DigitalPass.txt"
	if _, rest, ok := strings.Cut(resp.Header.Get("Content-Disposition"), "filename="); ok {
		name = filepath.Base(strings.Trim(rest, `"`))
	}
	return name, data, nil
}

func (c *Client) wizard(method, path string, body any) (WizardView, error) {
	var view WizardView
	return view, c.call(method, path, body, &view)
}

func (c *Client) payment(method, path string, body any) (PaymentView, error) {
	var view PaymentView
	return view, c.call(method, path, body, &view)
}

func (c *Client) call(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := c.newRequest(method, path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error  string            `json:"error"`
		Errors map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Fields = body.Errors
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
