package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"straddle-trader/internal/errors"
)

const kiteWebURL = "https://kite.zerodha.com"

// AutoLogin drives the Kite web login with user ID, password and TOTP to
// obtain a Connect request token without a browser.
type AutoLogin struct {
	UserID     string
	Password   string
	TOTPSecret string
	// BaseURL is the Kite web root; empty means kite.zerodha.com.
	BaseURL    string
	HTTPClient *http.Client
	Now        func() time.Time
}

type kiteWebResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
	Data      struct {
		RequestID string `json:"request_id"`
		TwofaType string `json:"twofa_type"`
	} `json:"data"`
}

// RequestToken logs in and follows the Connect login URL until the redirect
// carries a request_token.
func (a *AutoLogin) RequestToken(ctx context.Context, loginURL string) (string, error) {
	if a.UserID == "" || a.Password == "" || a.TOTPSecret == "" {
		return "", errors.NewBrokerError("LOGIN", "user id, password and totp secret are required", errors.ErrInvalidCredentials)
	}

	client, err := a.client()
	if err != nil {
		return "", err
	}
	base := strings.TrimRight(a.BaseURL, "/")
	if base == "" {
		base = kiteWebURL
	}

	// Loading the Connect page first sets the session cookie the login binds to.
	if _, err := a.follow(ctx, client, loginURL); err != nil {
		return "", err
	}

	login, err := a.post(ctx, client, base+"/api/login", url.Values{
		"user_id":  {a.UserID},
		"password": {a.Password},
	})
	if err != nil {
		return "", err
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	code, err := totp.GenerateCode(a.TOTPSecret, now())
	if err != nil {
		return "", errors.NewBrokerError("LOGIN", "failed to generate totp", err)
	}

	if _, err := a.post(ctx, client, base+"/api/twofa", url.Values{
		"user_id":     {a.UserID},
		"request_id":  {login.Data.RequestID},
		"twofa_value": {code},
		"twofa_type":  {"totp"},
	}); err != nil {
		return "", err
	}

	final, err := a.follow(ctx, client, loginURL+"&skip_session=true")
	if err != nil {
		return "", err
	}
	token := final.Query().Get("request_token")
	if token == "" {
		return "", errors.NewBrokerError("LOGIN", "no request_token in redirect "+final.Path, errors.ErrNotAuthenticated)
	}
	return token, nil
}

func (a *AutoLogin) client() (*http.Client, error) {
	base := a.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 15 * time.Second}
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := *base
	c.Jar = jar
	// Stop at the redirect that carries the request token; the app's
	// redirect URL need not be reachable from here.
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if req.URL.Query().Get("request_token") != "" {
			return http.ErrUseLastResponse
		}
		if len(via) >= 10 {
			return fmt.Errorf("stopped after %d redirects", len(via))
		}
		return nil
	}
	return &c, nil
}

func (a *AutoLogin) post(ctx context.Context, client *http.Client, endpoint string, form url.Values) (*kiteWebResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.NewBrokerError("LOGIN", endpoint, fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err))
	}
	defer resp.Body.Close()

	var out kiteWebResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.NewBrokerError("LOGIN", "decoding "+endpoint, err)
	}
	if resp.StatusCode != http.StatusOK || out.Status != "success" {
		return nil, errors.NewBrokerError(out.ErrorType, out.Message, errors.ErrInvalidCredentials)
	}
	return &out, nil
}

// follow issues a GET and returns the last URL reached.
func (a *AutoLogin) follow(ctx context.Context, client *http.Client, target string) (*url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.NewBrokerError("LOGIN", target, fmt.Errorf("%w: %v", errors.ErrConnectionFailed, err))
	}
	defer resp.Body.Close()

	if loc, err := resp.Location(); err == nil {
		return loc, nil
	}
	return resp.Request.URL, nil
}
