package turnstile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/TalentDesk/internal/pkg/env"
)

const siteVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// FormField is the form value the Turnstile widget submits.
const FormField = "cf-turnstile-response"

type Response struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
	Action      string   `json:"action"`
}

// Verifier checks widget tokens against the siteverify endpoint.
type Verifier struct {
	Secret   string
	Endpoint string
	Client   *http.Client
}

// NewVerifierFromEnv reads TURNSTILE_SECRET. Without a secret the returned
// verifier rejects every token.
func NewVerifierFromEnv() *Verifier {
	return &Verifier{
		Secret:   env.GetEnv("TURNSTILE_SECRET", ""),
		Endpoint: siteVerifyURL,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SiteKey returns the public widget key for templates.
func SiteKey() string {
	return env.GetEnv("TURNSTILE_SITEKEY", "")
}

// Verify reports whether token was issued for this site. remoteIP is optional.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if token == "" {
		return false, errors.New("turnstile token is empty")
	}
	if v.Secret == "" {
		return false, errors.New("turnstile secret is not set")
	}

	form := url.Values{
		"secret":   {v.Secret},
		"response": {token},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to send request to turnstile API: %w", err)
	}
	defer resp.Body.Close()

	var response Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return false, fmt.Errorf("failed to decode turnstile API response: %w", err)
	}

	if !response.Success {
		errorMsg := "turnstile validation failed"
		if len(response.ErrorCodes) > 0 {
			errorMsg = errorMsg + ": " + strings.Join(response.ErrorCodes, ", ")
		}
		return false, errors.New(errorMsg)
	}

	return true, nil
}
