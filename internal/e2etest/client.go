package e2etest

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/descope/virtualwebauthn"
	"github.com/justinas/nosurf"
	"github.com/myrjola/casefile/internal/errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	client        *http.Client
	jar           *sessionJar
	url           string
	rp            virtualwebauthn.RelyingParty
	authenticator virtualwebauthn.Authenticator
}

// Session is the body of GET /api/session.
type Session struct {
	Authenticated bool   `json:"authenticated"`
	CSRFToken     string `json:"csrfToken"`
}

// NewClient creates a Webauthn-aware HTTP client.
//
// rpID and rpOrigin should correspond to the Webauthn setup on the server.
func NewClient(url, rpID, rpOrigin string) (*Client, error) {
	jar, err := newSessionJar()
	if err != nil {
		return nil, errors.Wrap(err, "create session jar")
	}
	return &Client{
		client:        &http.Client{Jar: jar}, //nolint:exhaustruct // default transport and no timeout.
		jar:           jar,
		url:           url,
		rp:            virtualwebauthn.RelyingParty{Name: "Casefile", ID: rpID, Origin: rpOrigin},
		authenticator: virtualwebauthn.NewAuthenticator(),
	}, nil
}

// WaitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func (c *Client) WaitForReady(ctx context.Context, urlPath string) error {
	timeout := 1 * time.Second
	startTime := time.Now()
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	for {
		if req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.url+urlPath, nil); err != nil {
			return errors.Wrap(err, "create request")
		}

		if resp, err = c.client.Do(req); err == nil {
			status := resp.StatusCode
			if err = resp.Body.Close(); err != nil {
				return errors.Wrap(err, "close response body")
			}
			if status == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context cancelled")
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(100 * time.Millisecond) //nolint:mnd // 100ms
		}
	}
}

// Session fetches the login status and a fresh CSRF token.
func (c *Client) Session(ctx context.Context) (Session, error) {
	var session Session
	if err := c.doJSON(ctx, http.MethodGet, "/api/session", "", nil, http.StatusOK, &session); err != nil {
		return Session{}, errors.Wrap(err, "get session")
	}
	return session, nil
}

// SessionToken returns the session token last set by the server, or "" when none has been set yet.
func (c *Client) SessionToken() string {
	return c.jar.sessionToken()
}

// Do sends body encoded as JSON with the CSRF token header set and returns the raw response. A nil body sends no
// body. The caller closes the response body.
func (c *Client) Do(ctx context.Context, method string, urlPath string, body any) (*http.Response, error) {
	session, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		var encoded []byte
		if encoded, err = json.Marshal(body); err != nil {
			return nil, errors.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(encoded)
	}
	return c.send(ctx, method, urlPath, session.CSRFToken, reader)
}

// DoJSON is like Do but checks the status and decodes the response body into dst unless dst is nil.
func (c *Client) DoJSON(ctx context.Context, method string, urlPath string, body any, status int, dst any) error {
	resp, err := c.Do(ctx, method, urlPath, body)
	if err != nil {
		return err
	}
	return decodeResponse(resp, status, dst)
}

func (c *Client) doJSON(
	ctx context.Context,
	method string,
	urlPath string,
	csrfToken string,
	body io.Reader,
	status int,
	dst any,
) error {
	resp, err := c.send(ctx, method, urlPath, csrfToken, body)
	if err != nil {
		return err
	}
	return decodeResponse(resp, status, dst)
}

func (c *Client) send(
	ctx context.Context,
	method string,
	urlPath string,
	csrfToken string,
	body io.Reader,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url+urlPath, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if csrfToken != "" {
		req.Header.Set(nosurf.HeaderName, csrfToken)
	}
	var resp *http.Response
	if resp, err = c.client.Do(req); err != nil {
		return nil, errors.Wrap(err, "do request", slog.String("method", method), slog.String("path", urlPath))
	}
	return resp, nil
}

func decodeResponse(resp *http.Response, status int, dst any) error {
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != status {
		body, _ := io.ReadAll(resp.Body)
		return errors.New("unexpected status code",
			slog.Int("status", resp.StatusCode),
			slog.Int("want", status),
			slog.String("body", string(body)))
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return errors.Wrap(err, "decode response body")
	}
	return nil
}

// Register registers a new WebAuthn credential with the server and returns the resulting session.
func (c *Client) Register(ctx context.Context) (Session, error) {
	session, err := c.Session(ctx)
	if err != nil {
		return Session{}, err
	}

	var attOpts *virtualwebauthn.AttestationOptions
	if attOpts, err = c.startRegistration(ctx, session.CSRFToken); err != nil {
		return Session{}, errors.Wrap(err, "start registration")
	}

	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	attestationResponse := virtualwebauthn.CreateAttestationResponse(c.rp, c.authenticator, credential, *attOpts)
	if err = c.doJSON(ctx, http.MethodPost, "/api/registration/finish", session.CSRFToken,
		strings.NewReader(attestationResponse), http.StatusOK, &session); err != nil {
		return Session{}, errors.Wrap(err, "finish registration")
	}

	// At this point, our credential is ready for logging in.
	c.authenticator.AddCredential(credential)
	// This option is needed for making Passkey login work.
	c.authenticator.Options.UserHandle = []byte(attOpts.UserID)
	return session, nil
}

// startRegistration starts the registration process and returns the attestation options needed to finish it.
func (c *Client) startRegistration(ctx context.Context, csrfToken string) (*virtualwebauthn.AttestationOptions, error) {
	body, err := c.readRaw(ctx, "/api/registration/start", csrfToken)
	if err != nil {
		return nil, err
	}
	var attOpts *virtualwebauthn.AttestationOptions
	if attOpts, err = virtualwebauthn.ParseAttestationOptions(string(body)); err != nil {
		return nil, errors.Wrap(err, "parse attestation options")
	}
	return attOpts, nil
}

// Login logs in to the server given there is a registered WebAuthn credential and returns the resulting session.
func (c *Client) Login(ctx context.Context) (Session, error) {
	session, err := c.Session(ctx)
	if err != nil {
		return Session{}, err
	}

	var body []byte
	if body, err = c.readRaw(ctx, "/api/login/start", session.CSRFToken); err != nil {
		return Session{}, errors.Wrap(err, "start login")
	}
	var asOpts *virtualwebauthn.AssertionOptions
	if asOpts, err = virtualwebauthn.ParseAssertionOptions(string(body)); err != nil {
		return Session{}, errors.Wrap(err, "parse assertion options")
	}

	if len(c.authenticator.Credentials) == 0 {
		return Session{}, errors.New("no registered credential")
	}
	credential := c.authenticator.Credentials[0]
	asResp := virtualwebauthn.CreateAssertionResponse(c.rp, c.authenticator, credential, *asOpts)
	if err = c.doJSON(ctx, http.MethodPost, "/api/login/finish", session.CSRFToken,
		strings.NewReader(asResp), http.StatusOK, &session); err != nil {
		return Session{}, errors.Wrap(err, "finish login")
	}
	return session, nil
}

func (c *Client) Logout(ctx context.Context) (Session, error) {
	var session Session
	if err := c.DoJSON(ctx, http.MethodPost, "/api/logout", nil, http.StatusOK, &session); err != nil {
		return Session{}, errors.Wrap(err, "logout")
	}
	return session, nil
}

// readRaw posts an empty body and returns the raw response body of a 200 response.
func (c *Client) readRaw(ctx context.Context, urlPath string, csrfToken string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodPost, urlPath, csrfToken, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if http.StatusOK != resp.StatusCode {
		return nil, errors.New("unexpected status code", slog.Int("status", resp.StatusCode))
	}
	var body []byte
	if body, err = io.ReadAll(resp.Body); err != nil {
		return nil, errors.Wrap(err, "read body bytes")
	}
	return body, nil
}
