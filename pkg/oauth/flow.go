package oauth

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// LoadConfig reads an installed-app client secret file downloaded from the Google console.
func LoadConfig(credentialsFile string, scopes ...string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials %s: %w", credentialsFile, err)
	}
	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", credentialsFile, err)
	}
	return cfg, nil
}

// Client returns an HTTP client authorised with the stored token, refreshing
// and re-saving it as needed. ErrNoToken means consent has not been granted yet.
func Client(ctx context.Context, cfg *oauth2.Config, store TokenStore, onSave func(error)) (*http.Client, error) {
	token, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	source := PersistingTokenSource(ctx, cfg.TokenSource(ctx, token), store, token, onSave)
	return oauth2.NewClient(ctx, source), nil
}

// Consent runs the installed-app flow on a terminal: it prints the consent URL,
// reads the authorization code (or the full redirect URL) from in and exchanges it.
func Consent(ctx context.Context, cfg *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	state, err := randomState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce, oauth2.S256ChallengeOption(verifier))

	fmt.Fprintf(out, "Visit this URL to authorize access:\n\n%s\n\n", authURL)
	fmt.Fprint(out, "Paste the authorization code or the full redirect URL: ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read authorization code: %w", err)
		}
		return nil, errors.New("authorization code is required")
	}
	code, err := extractCode(scanner.Text(), state)
	if err != nil {
		return nil, err
	}

	token, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return token, nil
}

func extractCode(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("authorization code is required")
	}
	if !strings.Contains(input, "code=") {
		return input, nil
	}
	parsed, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	query := parsed.Query()
	if got := query.Get("state"); got != "" && got != state {
		return "", errors.New("state mismatch in redirect url")
	}
	code := query.Get("code")
	if code == "" {
		return "", errors.New("redirect url carries no code")
	}
	return code, nil
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
