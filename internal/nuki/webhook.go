package nuki

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	SignatureHeader       = "X-Nuki-Signature-SHA256"
	LegacySignatureHeader = "X-Vendor-Signature-SHA256"
)

// Feature names carried in the "feature" discriminator.
const (
	FeatureDeviceStatus = "DEVICE_STATUS"
	FeatureDeviceLogs   = "DEVICE_LOGS"
)

// Device states reported by DEVICE_STATUS.
const (
	StateLocked       = 1
	StateUnlocked     = 3
	StateMotorBlocked = 254
)

var (
	ErrMalformedBody   = errors.New("nuki: malformed webhook body")
	ErrMissingDeviceID = errors.New("nuki: webhook without smartlockId")
	ErrUnknownEvent    = errors.New("nuki: unknown webhook event")
)

// Event is one decoded webhook: *DeviceStatus, *DeviceLog or
// *RequestCompletion.
type Event interface {
	DeviceID() string
	event()
}

// DeviceStatus is an unsolicited state push.
type DeviceStatus struct {
	SmartlockID string
	State       int
	HasState    bool
	Raw         json.RawMessage
}

// DeviceLog is one entry of the device's usage history.
type DeviceLog struct {
	SmartlockID   string
	Action        int
	State         int
	AccountUserID string
	Name          string
}

// Succeeded reports whether the vendor flagged the logged operation as
// successful (state 0; non-zero states are failure codes).
func (l *DeviceLog) Succeeded() bool { return l.State < 1 }

// RequestCompletion settles a command previously accepted by AdvancedAction.
type RequestCompletion struct {
	SmartlockID string
	RequestID   string
	Success     bool
	ErrorCode   string
}

func (e *DeviceStatus) DeviceID() string      { return e.SmartlockID }
func (e *DeviceLog) DeviceID() string         { return e.SmartlockID }
func (e *RequestCompletion) DeviceID() string { return e.SmartlockID }

func (*DeviceStatus) event()      {}
func (*DeviceLog) event()         {}
func (*RequestCompletion) event() {}

// Action maps the pushed state to a log action code.  ok is false for states
// that are not logged.
func (e *DeviceStatus) Action() (action int, ok bool) {
	if !e.HasState {
		return 0, false
	}
	switch e.State {
	case StateLocked:
		return 2, true
	case StateUnlocked:
		return 1, true
	case StateMotorBlocked:
		return 254, true
	}
	return 0, false
}

type wireEvent struct {
	Feature      string          `json:"feature"`
	SmartlockID  flexString      `json:"smartlockId"`
	RequestID    flexString      `json:"requestId"`
	Success      flexBool        `json:"success"`
	ErrorCode    flexString      `json:"errorCode"`
	State        json.RawMessage `json:"state"`
	SmartlockLog *struct {
		Action        int        `json:"action"`
		State         int        `json:"state"`
		AccountUserID flexString `json:"accountUserId"`
		Name          string     `json:"name"`
	} `json:"smartlockLog"`
}

// ParseEvent decodes a webhook body whose signature has already been
// checked.
func ParseEvent(raw []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if w.SmartlockID == "" || w.SmartlockID == "0" {
		return nil, ErrMissingDeviceID
	}
	id := string(w.SmartlockID)

	switch {
	case w.Feature == FeatureDeviceStatus:
		ev := &DeviceStatus{SmartlockID: id, Raw: json.RawMessage(raw)}
		ev.State, ev.HasState = lockState(w.State)
		return ev, nil

	case w.Feature == FeatureDeviceLogs:
		if w.SmartlockLog == nil {
			return nil, fmt.Errorf("%w: DEVICE_LOGS without smartlockLog", ErrMalformedBody)
		}
		return &DeviceLog{
			SmartlockID:   id,
			Action:        w.SmartlockLog.Action,
			State:         w.SmartlockLog.State,
			AccountUserID: string(w.SmartlockLog.AccountUserID),
			Name:          w.SmartlockLog.Name,
		}, nil

	case w.RequestID != "":
		return &RequestCompletion{
			SmartlockID: id,
			RequestID:   string(w.RequestID),
			Success:     bool(w.Success),
			ErrorCode:   string(w.ErrorCode),
		}, nil
	}
	return nil, ErrUnknownEvent
}

// lockState reads {"state": n}.  Any other shape means no loggable state.
func lockState(raw json.RawMessage) (int, bool) {
	var obj struct {
		State *int `json:"state"`
	}
	if len(raw) == 0 || raw[0] != '{' || json.Unmarshal(raw, &obj) != nil || obj.State == nil {
		return 0, false
	}
	return *obj.State, true
}

// Sign returns the lowercase hex HMAC-SHA256 of body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks sig against the raw, unparsed body.
func VerifySignature(body []byte, secret, sig string) bool {
	if sig == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(body, secret)), []byte(sig))
}
