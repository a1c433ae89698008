package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves a keystore passphrase. It checks, in order, the
// environment variable, a file named by <envVar>_FILE, and finally prompts on
// the terminal. The first successful value is cached.
type Source struct {
	envVar string

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a passphrase source keyed on envVar.
func NewSource(envVar string) *Source {
	return &Source{envVar: strings.TrimSpace(envVar)}
}

// Get returns the cached passphrase or resolves it if this is the first call.
// Whitespace-only passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
		if path, ok := os.LookupEnv(s.envVar + "_FILE"); ok {
			contents, err := os.ReadFile(strings.TrimSpace(path))
			if err != nil {
				return "", fmt.Errorf("read %s_FILE: %w", s.envVar, err)
			}
			value := strings.TrimRight(string(contents), "\r\n")
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s_FILE points at an empty file", s.envVar)
			}
			return value, nil
		}
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		if s.envVar != "" {
			return "", fmt.Errorf("keeper keystore passphrase required; set %s or run interactively", s.envVar)
		}
		return "", errors.New("keeper keystore passphrase required and no terminal available")
	}

	fmt.Fprint(os.Stderr, "Enter keeper keystore passphrase: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	passphrase := string(bytes)
	if strings.TrimSpace(passphrase) == "" {
		return "", errors.New("keeper keystore passphrase cannot be empty")
	}
	return passphrase, nil
}
