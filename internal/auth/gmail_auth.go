package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/justsurfingit/careerboost/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// ErrNoToken is returned when no saved token exists and no terminal is
// available to authorize one.
var ErrNoToken = errors.New("no gmail token saved")

// NewGmailService builds a read-only Gmail client from the configured
// credentials and token files. When prompt is non-nil and no token is saved,
// the user is asked to authorize through it.
func NewGmailService(ctx context.Context, cfg config.GmailConfig, prompt io.ReadWriter) (*gmail.Service, error) {
	client, err := GetGmailClient(ctx, cfg, prompt)
	if err != nil {
		return nil, err
	}
	return gmail.NewService(ctx, option.WithHTTPClient(client))
}

// GetGmailClient retrieves a token, saves the token, then returns the generated client.
func GetGmailClient(ctx context.Context, cfg config.GmailConfig, prompt io.ReadWriter) (*http.Client, error) {
	// 1. Read credentials (the app's ID)
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	// 2. Config with scope (read-only access to Gmail)
	oauthCfg, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file: %w", err)
	}

	// 3. Get the client (the user's session)
	tok, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		if prompt == nil {
			return nil, fmt.Errorf("%w at %s: %v", ErrNoToken, cfg.TokenFile, err)
		}
		// No saved session, log in manually
		tok, err = getTokenFromWeb(ctx, oauthCfg, prompt)
		if err != nil {
			return nil, err
		}
		if err := saveToken(cfg.TokenFile, tok); err != nil {
			return nil, err
		}
	}
	return oauthCfg.Client(ctx, tok), nil
}

// Request a token from the web, then return the retrieved token.
func getTokenFromWeb(ctx context.Context, cfg *oauth2.Config, prompt io.ReadWriter) (*oauth2.Token, error) {
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(prompt, "Open this link to authorize Gmail access:\n%v\n", authURL)
	fmt.Fprint(prompt, "Paste the code here: ")

	var authCode string
	if _, err := fmt.Fscan(prompt, &authCode); err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}

	tok, err := cfg.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return tok, nil
}

// Retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// Saves a token to a file path.
func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
