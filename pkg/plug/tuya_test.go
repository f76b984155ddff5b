package plug

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.UnixMilli(1700000000000)

func newTestTuya(ts *httptest.Server) *Tuya {
	return &Tuya{
		client:   ts.Client(),
		baseURL:  ts.URL,
		accessID: "id",
		secret:   "secret",
		now:      func() time.Time { return fixedNow },
		nonce:    func() string { return "n" },
	}
}

func writeTuya(w http.ResponseWriter, result interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"result":  result,
		"t":       fixedNow.UnixMilli(),
	})
}

func writeTuyaError(w http.ResponseWriter, code int, msg string) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"code":    code,
		"msg":     msg,
	})
}

func TestTuyaSign(t *testing.T) {
	tu := &Tuya{accessID: "id", secret: "secret"}
	assert.Equal(t,
		"8F7A66CF793915E478AD21EC3812F7EDBAB2054ACB8057D303E4CC66CA1F3727",
		tu.sign("GET", "/v1.0/token?grant_type=1", nil, "", "1700000000000", "n"),
	)
	assert.Equal(t,
		"3B6948A43E3A317B1D8892A9A673AF9A0BB4F065F9DAF71624E82AFC1D6758F2",
		tu.sign("GET", "/v1.0/devices/dev1/status", nil, "tok", "1700000000000", "n"),
	)
}

func TestTuya(t *testing.T) {
	t.Run("ReadPower", func(t *testing.T) {
		var tokenCalls int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "id", r.Header.Get("client_id"))
			assert.Equal(t, "HMAC-SHA256", r.Header.Get("sign_method"))
			assert.Equal(t, "1700000000000", r.Header.Get("t"))
			switch r.URL.Path {
			case "/v1.0/token":
				atomic.AddInt32(&tokenCalls, 1)
				assert.Equal(t, "1", r.URL.Query().Get("grant_type"))
				assert.Empty(t, r.Header.Get("access_token"))
				assert.Equal(t, "8F7A66CF793915E478AD21EC3812F7EDBAB2054ACB8057D303E4CC66CA1F3727", r.Header.Get("sign"))
				writeTuya(w, map[string]interface{}{"access_token": "tok", "expire_time": 7200})
			case "/v1.0/devices/dev1/status":
				assert.Equal(t, "tok", r.Header.Get("access_token"))
				assert.Equal(t, "3B6948A43E3A317B1D8892A9A673AF9A0BB4F065F9DAF71624E82AFC1D6758F2", r.Header.Get("sign"))
				writeTuya(w, []map[string]interface{}{
					{"code": "switch_1", "value": true},
					{"code": "countdown_1", "value": 0},
					{"code": "cur_power", "value": 1234},
				})
			default:
				http.Error(w, "not found", 404)
			}
		}))
		defer ts.Close()

		tu := newTestTuya(ts)
		r, err := tu.ReadPower(context.Background(), "dev1")
		require.NoError(t, err)
		assert.Equal(t, "dev1", r.DeviceID)
		assert.True(t, r.IsOn)
		assert.Equal(t, 123.4, r.Watts)
		assert.Equal(t, 1234.0, r.RawPowerValue)
		assert.Equal(t, "cur_power", r.PowerCode)
		assert.Equal(t, "switch_1", r.SwitchCode)
		assert.Equal(t, fixedNow, r.Timestamp)

		// token is cached
		_, err = tu.ReadPower(context.Background(), "dev1")
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
	})

	t.Run("Token Refresh", func(t *testing.T) {
		var tokenCalls, statusCalls int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v1.0/token":
				n := atomic.AddInt32(&tokenCalls, 1)
				if n == 1 {
					writeTuya(w, map[string]interface{}{"access_token": "old", "expire_time": 7200})
				} else {
					writeTuya(w, map[string]interface{}{"access_token": "new", "expire_time": 7200})
				}
			case "/v1.0/devices/dev1/status":
				atomic.AddInt32(&statusCalls, 1)
				if r.Header.Get("access_token") == "old" {
					writeTuyaError(w, 1010, "token invalid")
					return
				}
				writeTuya(w, []map[string]interface{}{{"code": "switch", "value": false}})
			}
		}))
		defer ts.Close()

		tu := newTestTuya(ts)
		r, err := tu.ReadPower(context.Background(), "dev1")
		require.NoError(t, err)
		assert.False(t, r.IsOn)
		assert.Zero(t, r.Watts, "zero watts is a valid reading")
		assert.Equal(t, int32(2), atomic.LoadInt32(&tokenCalls))
		assert.Equal(t, int32(2), atomic.LoadInt32(&statusCalls))
		assert.Equal(t, "new", tu.token)
	})

	t.Run("Expired Token", func(t *testing.T) {
		var tokenCalls int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1.0/token" {
				atomic.AddInt32(&tokenCalls, 1)
				writeTuya(w, map[string]interface{}{"access_token": "tok", "expire_time": 7200})
				return
			}
			writeTuya(w, []map[string]interface{}{})
		}))
		defer ts.Close()

		tu := newTestTuya(ts)
		tu.token = "stale"
		tu.tokenExpiry = fixedNow.Add(-time.Second)
		_, err := tu.ReadPower(context.Background(), "dev1")
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
		assert.Equal(t, fixedNow.Add(2*time.Hour-time.Minute), tu.tokenExpiry)
	})

	t.Run("API Error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1.0/token" {
				writeTuya(w, map[string]interface{}{"access_token": "tok", "expire_time": 7200})
				return
			}
			writeTuyaError(w, 1106, "permission deny")
		}))
		defer ts.Close()

		_, err := newTestTuya(ts).ReadPower(context.Background(), "dev1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "permission deny")
	})

	t.Run("HTTP Error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		defer ts.Close()

		_, err := newTestTuya(ts).ReadPower(context.Background(), "dev1")
		assert.Error(t, err)
	})

	t.Run("Toggle", func(t *testing.T) {
		var sent map[string][]tuyaCommand
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/v1.0/token":
				writeTuya(w, map[string]interface{}{"access_token": "tok", "expire_time": 7200})
			case "/v1.0/devices/dev1/status":
				writeTuya(w, []map[string]interface{}{
					{"code": "switch_led", "value": false},
					{"code": "switch", "value": true},
				})
			case "/v1.0/devices/dev1/commands":
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
				writeTuya(w, true)
			}
		}))
		defer ts.Close()

		on, err := newTestTuya(ts).Toggle(context.Background(), "dev1")
		require.NoError(t, err)
		assert.False(t, on)
		require.Len(t, sent["commands"], 1)
		assert.Equal(t, "switch", sent["commands"][0].Code, "preferred switch code wins")
		assert.Equal(t, false, sent["commands"][0].Value)
	})

	t.Run("Toggle No Switch", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1.0/token" {
				writeTuya(w, map[string]interface{}{"access_token": "tok", "expire_time": 7200})
				return
			}
			writeTuya(w, []map[string]interface{}{{"code": "cur_power", "value": 10}})
		}))
		defer ts.Close()

		_, err := newTestTuya(ts).Toggle(context.Background(), "dev1")
		assert.ErrorIs(t, err, ErrNoSwitch)
	})

	t.Run("Validate", func(t *testing.T) {
		assert.Error(t, (&Tuya{}).Validate())
		assert.NoError(t, (&Tuya{accessID: "a", secret: "b"}).Validate())
	})
}
