package plug

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"

	"github.com/plugmeter/plugmeter/pkg/common"
	"github.com/plugmeter/plugmeter/pkg/log"
	"github.com/plugmeter/plugmeter/pkg/types"
)

const tuyaTokenPath = "/v1.0/token"

// Tuya error codes that mean the access token must be fetched again.
var tuyaTokenCodes = map[int]bool{
	1010: true, // token invalid
	1011: true, // token expired
}

// Tuya implements the Plug interface for the Tuya OpenAPI.
type Tuya struct {
	client      *http.Client
	baseURL     string
	accessID    string
	secret      string
	mu          sync.Mutex
	token       string
	tokenExpiry time.Time

	now   func() time.Time
	nonce func() string
}

func newTuya() *Tuya {
	return &Tuya{
		client:  common.HTTPClient(10 * time.Second),
		baseURL: "https://openapi.tuyaeu.com",
		now:     time.Now,
		nonce:   uuid.NewString,
	}
}

func configuredTuya() *Tuya {
	baseURL := lflag.String("tuya-base-url", "https://openapi.tuyaeu.com", "Tuya OpenAPI base URL for the account's data center")
	accessID := lflag.String("tuya-access-id", "", "Tuya cloud project access id")
	secret := lflag.String("tuya-access-secret", "", "Tuya cloud project access secret")

	t := newTuya()
	lflag.Do(func() {
		t.baseURL = *baseURL
		t.accessID = *accessID
		t.secret = *secret
	})
	return t
}

// Validate checks the credentials are configured.
func (t *Tuya) Validate() error {
	if t.accessID == "" || t.secret == "" {
		return errors.New("missing Tuya API credentials")
	}
	return nil
}

type tuyaResponse struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
	T       int64           `json:"t"`
}

type tuyaTokenResult struct {
	AccessToken  string `json:"access_token"`
	ExpireTime   int64  `json:"expire_time"`
	RefreshToken string `json:"refresh_token"`
	UID          string `json:"uid"`
}

type tuyaStatus struct {
	Code  string          `json:"code"`
	Value json.RawMessage `json:"value"`
}

type tuyaCommand struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
}

// contentHash is the sha256 of the body in hex.
func contentHash(body []byte) string {
	h := sha256.Sum256(body)
	return hex.EncodeToString(h[:])
}

// sign computes the request signature. Token requests omit the access token.
func (t *Tuya) sign(method, pathAndQuery string, body []byte, token, ts, nonce string) string {
	stringToSign := strings.Join([]string{
		method,
		contentHash(body),
		"",
		pathAndQuery,
	}, "\n")
	mac := hmac.New(sha256.New, []byte(t.secret))
	mac.Write([]byte(t.accessID + token + ts + nonce + stringToSign))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

func (t *Tuya) newRequest(ctx context.Context, method, endpoint string, params url.Values, data interface{}) (*http.Request, []byte, error) {
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return nil, nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, nil, err
	}
	u.RawQuery = params.Encode()

	var body []byte
	if data != nil {
		body, err = json.Marshal(data)
		if err != nil {
			return nil, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, body, nil
}

// ensureToken will not fetch a token again if the cached one is still valid.
// The caller must hold t.mu.
func (t *Tuya) ensureToken(ctx context.Context) error {
	if t.token != "" && t.now().Before(t.tokenExpiry) {
		return nil
	}
	req, body, err := t.newRequest(ctx, http.MethodGet, tuyaTokenPath, url.Values{"grant_type": {"1"}}, nil)
	if err != nil {
		return err
	}
	var res tuyaTokenResult
	if err := t.doRequest(req, body, "", &res); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "tuya token request failed", slog.Any("error", err))
		return fmt.Errorf("failed to get token: %w", err)
	}
	if res.AccessToken == "" {
		return errors.New("tuya returned an empty access token")
	}
	t.token = res.AccessToken
	// refresh a minute early so in-flight requests do not race the expiry
	t.tokenExpiry = t.now().Add(time.Duration(res.ExpireTime)*time.Second - time.Minute)
	log.Ctx(ctx).DebugContext(ctx, "tuya token refreshed", slog.Time("expiry", t.tokenExpiry))
	return nil
}

// call performs an authenticated request, fetching a new token once if the
// cached one was rejected.
func (t *Tuya) call(ctx context.Context, method, endpoint string, data interface{}, dest interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// we try up to 2 times because we might have an expired token
	for i := 0; i < 2; i++ {
		if err := t.ensureToken(ctx); err != nil {
			return err
		}
		req, body, err := t.newRequest(ctx, method, endpoint, nil, data)
		if err != nil {
			return err
		}
		err = t.doRequest(req, body, t.token, dest)
		var apiErr *tuyaError
		if errors.As(err, &apiErr) && tuyaTokenCodes[apiErr.Code] && i == 0 {
			log.Ctx(ctx).DebugContext(ctx, "tuya token rejected", slog.Int("code", apiErr.Code), slog.String("message", apiErr.Msg))
			t.token = ""
			continue
		}
		return err
	}
	return nil
}

type tuyaError struct {
	Code int
	Msg  string
}

func (e *tuyaError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("tuya api error %d", e.Code)
	}
	return fmt.Sprintf("tuya api error %d: %s", e.Code, e.Msg)
}

func (t *Tuya) doRequest(req *http.Request, body []byte, token string, dest interface{}) error {
	ts := strconv.FormatInt(t.now().UnixMilli(), 10)
	nonce := t.nonce()
	pathAndQuery := req.URL.Path
	if req.URL.RawQuery != "" {
		pathAndQuery += "?" + req.URL.RawQuery
	}
	req.Header.Set("client_id", t.accessID)
	req.Header.Set("t", ts)
	req.Header.Set("nonce", nonce)
	req.Header.Set("sign_method", "HMAC-SHA256")
	req.Header.Set("sign", t.sign(req.Method, pathAndQuery, body, token, ts, nonce))
	if token != "" {
		req.Header.Set("access_token", token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var tr tuyaResponse
	if err := json.Unmarshal(b, &tr); err != nil {
		log.Ctx(req.Context()).ErrorContext(req.Context(), "failed to decode tuya response", slog.Any("error", err), slog.String("body", string(b)))
		return err
	}
	if !tr.Success {
		log.Ctx(req.Context()).ErrorContext(req.Context(), "tuya api error", slog.Int("code", tr.Code), slog.String("message", tr.Msg))
		return &tuyaError{Code: tr.Code, Msg: tr.Msg}
	}

	if dest != nil {
		if err := json.Unmarshal(tr.Result, dest); err != nil {
			return fmt.Errorf("failed to decode tuya result: %w", err)
		}
	}
	return nil
}

func (t *Tuya) getStatus(ctx context.Context, deviceID string) ([]tuyaStatus, error) {
	var status []tuyaStatus
	if err := t.call(ctx, http.MethodGet, "/v1.0/devices/"+url.PathEscape(deviceID)+"/status", nil, &status); err != nil {
		return nil, fmt.Errorf("failed to get device status: %w", err)
	}
	return status, nil
}

// findCode returns the value of the first code in candidates present in status.
func findCode(status []tuyaStatus, candidates []string) (string, json.RawMessage, bool) {
	for _, c := range candidates {
		for _, s := range status {
			if s.Code == c {
				return c, s.Value, true
			}
		}
	}
	return "", nil, false
}

// parseReading extracts the power and switch state from a status list.
func parseReading(deviceID string, status []tuyaStatus) types.PowerReading {
	r := types.PowerReading{DeviceID: deviceID}
	if code, v, ok := findCode(status, switchCodes); ok {
		var on bool
		if json.Unmarshal(v, &on) == nil {
			r.IsOn = on
		}
		r.SwitchCode = code
	}
	if code, v, ok := findCode(status, powerCodes); ok {
		var raw float64
		if json.Unmarshal(v, &raw) == nil {
			r.RawPowerValue = raw
			r.Watts = NormalizeWatts(raw)
		}
		r.PowerCode = code
	}
	return r
}

// ReadPower reads the device status and normalises its power value.
func (t *Tuya) ReadPower(ctx context.Context, deviceID string) (types.PowerReading, error) {
	status, err := t.getStatus(ctx, deviceID)
	if err != nil {
		return types.PowerReading{}, err
	}
	r := parseReading(deviceID, status)
	r.Timestamp = t.now()
	if r.PowerCode == "" {
		log.Ctx(ctx).DebugContext(ctx, "no power property reported", slog.String("deviceID", deviceID))
	}
	return r, nil
}

// Toggle reads the switch state and sends the inverted value.
func (t *Tuya) Toggle(ctx context.Context, deviceID string) (bool, error) {
	status, err := t.getStatus(ctx, deviceID)
	if err != nil {
		return false, err
	}
	r := parseReading(deviceID, status)
	if r.SwitchCode == "" {
		return false, ErrNoSwitch
	}

	next := !r.IsOn
	cmd := map[string][]tuyaCommand{
		"commands": {{Code: r.SwitchCode, Value: next}},
	}
	var ok bool
	if err := t.call(ctx, http.MethodPost, "/v1.0/devices/"+url.PathEscape(deviceID)+"/commands", cmd, &ok); err != nil {
		return false, fmt.Errorf("failed to toggle device: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "toggled device", slog.String("deviceID", deviceID), slog.String("switch", r.SwitchCode), slog.Bool("on", next))
	return next, nil
}

var _ Plug = (*Tuya)(nil)
