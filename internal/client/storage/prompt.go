package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// Prompter reads answers to interactive questions.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	// fd is the terminal read for hidden input.
	fd int
}

// NewPrompter returns a Prompter reading r and writing prompts to w. Hidden
// input is read from the terminal behind os.Stdin.
func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(r), out: w, fd: int(os.Stdin.Fd())}
}

// Line prints label and reads one trimmed line. A partial last line before
// EOF is returned as is.
func (p *Prompter) Line(label string) (string, error) {
	if _, err := fmt.Fprint(p.out, label+": "); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Default is Line with a value used when the answer is empty.
func (p *Prompter) Default(label, current string) (string, error) {
	if current == "" {
		return p.Line(label)
	}
	v, err := p.Line(fmt.Sprintf("%s [%s]", label, current))
	if err != nil {
		return "", err
	}
	if v == "" {
		return current, nil
	}
	return v, nil
}

// Choice asks for one of options by number or exact text.
func (p *Prompter) Choice(label string, options []string, current string) (string, error) {
	for i, o := range options {
		fmt.Fprintf(p.out, "  %2d) %s\n", i+1, o)
	}
	v, err := p.Default(label, current)
	if err != nil {
		return "", err
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], nil
	}
	return v, nil
}

// Secret prints label and reads input without echo.
func (p *Prompter) Secret(label string) (string, error) {
	if _, err := fmt.Fprint(p.out, label+": "); err != nil {
		return "", err
	}
	b, err := readPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return string(b), nil
}
