// Package dropbox is a minimal Dropbox API v2 client covering the calls the
// upload sink needs: account lookup and single-request file upload.
package dropbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/nir0k/SunLapse/internal/upload"
	"golang.org/x/oauth2"
)

const (
	defaultAPIURL     = "https://api.dropboxapi.com/2"
	defaultContentURL = "https://content.dropboxapi.com/2"
	defaultTimeout    = 2 * time.Minute
)

// ErrNoToken is returned when the access token file is missing or empty.
var ErrNoToken = errors.New("no access token")

// LoadToken reads an access token written by the authorization flow.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s does not exist", ErrNoToken, path)
	}
	if err != nil {
		return "", fmt.Errorf("read token %s: %w", path, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNoToken, path)
	}
	return token, nil
}

// Client talks to the Dropbox HTTP API with a bearer token.
type Client struct {
	http       *http.Client
	apiURL     string
	contentURL string
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURLs points the client at alternative endpoints.
func WithBaseURLs(apiURL, contentURL string) Option {
	return func(c *Client) {
		c.apiURL = strings.TrimRight(apiURL, "/")
		c.contentURL = strings.TrimRight(contentURL, "/")
	}
}

// New returns a client authenticating every request with token.
func New(ctx context.Context, token string, opts ...Option) *Client {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = defaultTimeout

	c := &Client{
		http:       httpClient,
		apiURL:     defaultAPIURL,
		contentURL: defaultContentURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type accountResponse struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Name      struct {
		DisplayName string `json:"display_name"`
	} `json:"name"`
}

// AccountInfo validates the token by fetching the current account.
func (c *Client) AccountInfo(ctx context.Context) (upload.Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/users/get_current_account", nil)
	if err != nil {
		return upload.Account{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return upload.Account{}, fmt.Errorf("get current account: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return upload.Account{}, err
	}

	var body accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return upload.Account{}, fmt.Errorf("decode account: %w", err)
	}
	return upload.Account{
		ID:    body.AccountID,
		Name:  body.Name.DisplayName,
		Email: body.Email,
	}, nil
}

type uploadArg struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Mute bool   `json:"mute"`
}

// PutFile uploads body to remotePath, replacing any existing file.
func (c *Client) PutFile(ctx context.Context, remotePath string, body io.Reader) error {
	arg, err := json.Marshal(uploadArg{Path: remotePath, Mode: "overwrite", Mute: true})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentURL+"/files/upload", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Dropbox-API-Arg", asciiJSON(arg))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", remotePath, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// asciiJSON escapes every non-ASCII rune as \uXXXX. Dropbox rejects raw
// UTF-8 in the Dropbox-API-Arg header.
func asciiJSON(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, r := range string(data) {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
			continue
		}
		if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
			fmt.Fprintf(&b, "\\u%04x\\u%04x", r1, r2)
			continue
		}
		fmt.Fprintf(&b, "\\u%04x", r)
	}
	return b.String()
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("dropbox: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
}
