package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads secrets without echo when stdin is a terminal, and plain
// lines otherwise so commands can be scripted.
type prompter struct {
	in  io.Reader
	out io.Writer
	fd  int
	tty bool

	lines *bufio.Reader
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{in: in, out: out}
	if f, ok := in.(*os.File); ok {
		p.fd = int(f.Fd())
		p.tty = term.IsTerminal(p.fd)
	}
	return p
}

func (p *prompter) secret(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	if p.tty {
		b, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
		}
		return string(b), nil
	}
	return p.line()
}

func (p *prompter) line() (string, error) {
	if p.lines == nil {
		p.lines = bufio.NewReader(p.in)
	}
	s, err := p.lines.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// newPIN asks for a PIN twice and requires both entries to match.
func (p *prompter) newPIN() (string, error) {
	first, err := p.secret("New PIN")
	if err != nil {
		return "", err
	}
	second, err := p.secret("Confirm PIN")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("PINs do not match")
	}
	return first, nil
}
