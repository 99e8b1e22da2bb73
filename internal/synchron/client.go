// Package synchron is the client for the synchron.de booking portal: form
// login with CSRF token, session reuse, and scraping of the appointments
// table.
package synchron

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"synchronsync/internal/models"
)

const (
	loginPath  = "/login?is_app=0"
	eventsPath = "/events?is_app=0"

	// The appointments page is titled "Termine"; its presence in a response
	// body is the portal's only reliable logged-in signal.
	loggedInMarker = "Termine"
)

// Config holds portal credentials and client tuning.
type Config struct {
	BaseURL  string
	Username string
	Password string

	// MaxAppointments caps how many rows are taken from the appointments
	// table. Zero means all rows.
	MaxAppointments int

	LoginRetries    int
	LoginRetryDelay time.Duration

	RequestTimeout time.Duration
}

// Client talks to the portal. It owns its cookie jar; one Client serves one
// run at a time.
type Client struct {
	cfg    Config
	http   *http.Client
	jar    *cookiejar.Jar
	cache  SessionCache
	logger *zerolog.Logger
}

// NewClient builds a portal client. cache may be nil to disable session
// reuse across runs.
func NewClient(cfg Config, cache SessionCache, logger *zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://login.synchron.de"
	}
	if cfg.LoginRetries <= 0 {
		cfg.LoginRetries = 3
	}
	if cfg.LoginRetryDelay <= 0 {
		cfg.LoginRetryDelay = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{Jar: jar, Timeout: cfg.RequestTimeout},
		jar:    jar,
		cache:  cache,
		logger: logger,
	}, nil
}

// Login establishes a portal session. A cached session is probed first; a
// fresh form login runs with a bounded number of attempts and a constant
// delay between them. Returns *AuthError once the budget is exhausted.
func (c *Client) Login(ctx context.Context) error {
	if c.restoreSession(ctx) {
		c.logger.Debug().Msg("reusing cached portal session")
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.LoginRetries; attempt++ {
		err := c.loginOnce(ctx)
		if err == nil {
			c.saveSession(ctx)
			c.logger.Info().Int("attempt", attempt).Msg("portal login succeeded")
			return nil
		}
		lastErr = err
		c.logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", c.cfg.LoginRetries).
			Msg("portal login failed")

		if attempt == c.cfg.LoginRetries {
			break
		}
		select {
		case <-time.After(c.cfg.LoginRetryDelay):
		case <-ctx.Done():
			return &AuthError{Attempts: attempt, Err: ctx.Err()}
		}
	}
	return &AuthError{Attempts: c.cfg.LoginRetries, Err: lastErr}
}

func (c *Client) loginOnce(ctx context.Context) error {
	token, err := c.fetchCSRFToken(ctx)
	if err != nil {
		return err
	}

	form := url.Values{
		"username": {c.cfg.Username},
		"password": {c.cfg.Password},
		"_token":   {token},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post login: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), loggedInMarker) {
		return fmt.Errorf("login rejected (status %d)", resp.StatusCode)
	}
	return nil
}

func (c *Client) fetchCSRFToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("get login page: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse login page: %w", err)
	}
	token, ok := doc.Find(`input[name="_token"]`).First().Attr("value")
	if !ok {
		return "", errors.New("csrf token not found on login page")
	}
	return token, nil
}

// FetchAppointments scrapes the appointments page of the logged-in session.
func (c *Client) FetchAppointments(ctx context.Context) ([]models.RawAppointment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+eventsPath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get appointments page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("appointments page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse appointments page: %w", err)
	}

	appointments := parseAppointments(doc, c.cfg.MaxAppointments)
	c.logger.Info().Int("count", len(appointments)).Msg("scraped appointments")
	return appointments, nil
}

// restoreSession loads cached cookies and probes the appointments page with
// them. Returns true only when the cached session is still accepted.
func (c *Client) restoreSession(ctx context.Context) bool {
	if c.cache == nil {
		return false
	}
	cookies, err := c.cache.Load(ctx)
	if err != nil || len(cookies) == 0 {
		return false
	}
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return false
	}
	c.jar.SetCookies(base, cookies)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+eventsPath, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}
	return resp.StatusCode == http.StatusOK && strings.Contains(string(body), loggedInMarker)
}

func (c *Client) saveSession(ctx context.Context) {
	if c.cache == nil {
		return
	}
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return
	}
	if err := c.cache.Save(ctx, c.jar.Cookies(base)); err != nil {
		c.logger.Warn().Err(err).Msg("failed to cache portal session")
	}
}
