// Package identity exchanges LIFF id tokens for user identities against the
// LINE token verification endpoint.
package identity

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

const verifyEndpoint = "https://api.line.me/oauth2/v2.1/verify"

// ErrTokenExpired is returned when the id token is past its expiry; callers
// map it to a 403 so the client can re-login.
var ErrTokenExpired = errors.New("id token expired")

// ErrInvalidToken is returned for any other token rejection.
var ErrInvalidToken = errors.New("invalid id token")

// Verifier resolves an id token into the stable user id it was issued for.
type Verifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (userID string, err error)
}

var _ Verifier = (*Client)(nil)

// Client verifies id tokens against the LINE endpoint.
type Client struct {
	channelID string
	endpoint  string
	http      *http.Client
}

// NewClient creates a verifier for the given login channel. httpClient may
// be nil, in which case a client with an 8s timeout is used.
func NewClient(channelID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 8 * time.Second}
	}
	return &Client{channelID: channelID, endpoint: verifyEndpoint, http: httpClient}
}

// VerifyIDToken posts the token to the verify endpoint and returns the
// subject claim. Expired tokens map to ErrTokenExpired, other rejections to
// ErrInvalidToken.
func (c *Client) VerifyIDToken(ctx context.Context, idToken string) (string, error) {
	form := url.Values{
		"id_token":  {idToken},
		"client_id": {c.channelID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "build verify request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "call verify endpoint")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read verify response")
	}

	var sub, errCode, errDesc string
	d := jx.DecodeBytes(raw)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "sub":
			v, err := d.Str()
			if err != nil {
				return err
			}
			sub = v
		case "error":
			v, err := d.Str()
			if err != nil {
				return err
			}
			errCode = v
		case "error_description":
			v, err := d.Str()
			if err != nil {
				return err
			}
			errDesc = v
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return "", errors.Wrap(err, "decode verify response")
	}

	if errCode != "" {
		if strings.Contains(errDesc, "expired") {
			return "", ErrTokenExpired
		}
		return "", errors.Wrapf(ErrInvalidToken, "%s: %s", errCode, errDesc)
	}
	if sub == "" {
		return "", errors.Wrap(ErrInvalidToken, "missing sub claim")
	}
	return sub, nil
}
