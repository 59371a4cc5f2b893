// Package notify implements the Notifier port: delivery through the EmailJS
// REST API, and a development notifier that writes to the log.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ericfisherdev/notevault/internal/domain/port/driven"
)

// DefaultEmailJSEndpoint is the EmailJS send API.
const DefaultEmailJSEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*EmailJS)(nil)

// EmailJSConfig holds the account identifiers for an EmailJS template.
type EmailJSConfig struct {
	ServiceID  string
	TemplateID string
	PublicKey  string
	PrivateKey string // Optional; sent as accessToken when set.
	AppName    string
	Endpoint   string // Defaults to DefaultEmailJSEndpoint.
}

// EmailJS sends reset codes through an EmailJS template whose parameters are
// to_email, reset_code and app_name.
type EmailJS struct {
	cfg        EmailJSConfig
	httpClient *http.Client
}

// NewEmailJS creates an EmailJS notifier. A nil httpClient gets a client with
// a 10 second timeout.
func NewEmailJS(cfg EmailJSConfig, httpClient *http.Client) (*EmailJS, error) {
	if cfg.ServiceID == "" || cfg.TemplateID == "" || cfg.PublicKey == "" {
		return nil, errors.New("emailjs requires service id, template id and public key")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEmailJSEndpoint
	}
	if cfg.AppName == "" {
		cfg.AppName = "notevault"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &EmailJS{cfg: cfg, httpClient: httpClient}, nil
}

type emailJSRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"accessToken,omitempty"`
	TemplateParams map[string]string `json:"template_params"`
}

// Send delivers payload to destination. Any status other than 200 is an error.
func (e *EmailJS) Send(ctx context.Context, destination, payload string) error {
	if destination == "" {
		return errors.New("send reset code: no recovery address configured")
	}

	body, err := json.Marshal(emailJSRequest{
		ServiceID:   e.cfg.ServiceID,
		TemplateID:  e.cfg.TemplateID,
		UserID:      e.cfg.PublicKey,
		AccessToken: e.cfg.PrivateKey,
		TemplateParams: map[string]string{
			"to_email":   destination,
			"reset_code": payload,
			"app_name":   e.cfg.AppName,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal emailjs request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create emailjs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send emailjs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("emailjs returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
