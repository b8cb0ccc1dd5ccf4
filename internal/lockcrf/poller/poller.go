// Package poller waits for a vendor command to settle by reading its
// Request through the HTTP API.  It makes at most two reads.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultDelay    = 3500 * time.Millisecond
	DefaultAttempts = 2
)

// MotorBlockedCode is the vendor error code for a jammed motor.
const MotorBlockedCode = "42"

var ErrLockDidNotRespond = errors.New("La serrure n'a pas répondu à la demande.")

// APIError is a failure envelope returned by the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("api %d: %s", e.Status, e.Message) }

// Settlement is the terminal state of a command.
type Settlement struct {
	RequestID string
	Success   bool
	ErrorCode string
}

// Message renders the settlement for an operator.
func (s Settlement) Message() string {
	if s.Success {
		return "Action effectuée avec succès"
	}
	if s.ErrorCode == MotorBlockedCode {
		return "Erreur : Moteur bloqué, la porte n'est probablement pas claquée."
	}
	return "Erreur : Inconnue"
}

type Poller struct {
	BaseURL   string
	APISecret string
	Client    *http.Client
	Delay     time.Duration
	Attempts  int
	Logger    *zap.Logger
}

type envelope struct {
	Success bool `json:"success"`
	Request *struct {
		ID      string  `json:"id"`
		Success *bool   `json:"success"`
		Error   *string `json:"error"`
	} `json:"request"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Await waits Delay before each read and returns as soon as the request is
// terminal.  After Attempts pending reads it returns ErrLockDidNotRespond.
func (p *Poller) Await(ctx context.Context, requestID string) (Settlement, error) {
	delay, attempts := p.Delay, p.Attempts
	if delay <= 0 {
		delay = DefaultDelay
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return Settlement{}, ctx.Err()
		case <-timer.C:
		}

		s, settled, err := p.read(ctx, requestID)
		if err != nil {
			return Settlement{}, err
		}
		if settled {
			return s, nil
		}
		logger.Debug("request still pending", zap.String("request_id", requestID), zap.Int("attempt", attempt))
		timer.Reset(delay)
	}
	return Settlement{}, ErrLockDidNotRespond
}

func (p *Poller) read(ctx context.Context, requestID string) (Settlement, bool, error) {
	form := url.Values{}
	form.Set("apiSecret", p.APISecret)

	endpoint := strings.TrimRight(p.BaseURL, "/") + "/api/requests/" + url.PathEscape(requestID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Settlement{}, false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Settlement{}, false, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Settlement{}, false, fmt.Errorf("decode settlement: %w", err)
	}
	if !env.Success || env.Request == nil {
		msg := http.StatusText(resp.StatusCode)
		if env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return Settlement{}, false, &APIError{Status: resp.StatusCode, Message: msg}
	}
	if env.Request.Success == nil {
		return Settlement{}, false, nil
	}

	s := Settlement{RequestID: env.Request.ID, Success: *env.Request.Success}
	if env.Request.Error != nil {
		s.ErrorCode = *env.Request.Error
	}
	return s, true, nil
}
