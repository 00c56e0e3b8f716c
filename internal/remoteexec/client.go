package remoteexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/geocoder89/eventhub/internal/observability"
	resty "github.com/go-resty/resty/v2"
)

type Config struct {
	BaseURL          string
	AccessToken      string
	RequestTimeout   time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	HalfOpenMaxCalls int
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
}

// Client drives the remote job executor's async delegation protocol:
// POST the archive, follow the Location header to a status URL, GET it
// until the job leaves StatusRunning, DELETE it to cancel. Grounded on the
// xxl-job executor's resty-based HTTP client.
type Client struct {
	cli     *resty.Client
	cfg     Config
	breaker *breaker
	prom    *observability.Prom
}

func New(cfg Config, prom *observability.Prom) *Client {
	cfg.applyDefaults()

	cli := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.RequestTimeout).
		// A 303 from Start carries the status URL of an execution that is
		// already running; it is read, not followed.
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	if cfg.AccessToken != "" {
		cli.SetHeader("X-Access-Token", cfg.AccessToken)
	}

	return &Client{
		cli: cli,
		cfg: cfg,
		breaker: newBreaker(breakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			Cooldown:         cfg.Cooldown,
			HalfOpenMaxCalls: cfg.HalfOpenMaxCalls,
		}),
		prom: prom,
	}
}

func (c *Client) observe(op string, fn func() error) error {
	var err error
	if c.prom != nil {
		err = c.prom.ObserveRemoteExec(op, fn)
	} else {
		err = fn()
	}
	return err
}

// Start posts the archive stream to <base>/<jobName> and returns the status
// URL the remote executor handed back (201 Created or 303 See Other,
// Location header), which Poll and Stop operate against thereafter.
func (c *Client) Start(ctx context.Context, jobName string, archive io.Reader) (string, error) {
	if !c.breaker.allow() {
		return "", ErrCircuitOpen
	}

	var statusURL string
	err := c.observe("remoteexec.start", func() error {
		resp, err := c.cli.R().
			SetContext(ctx).
			SetFileReader("archive", jobName+".tar", archive).
			Post("/" + jobName)
		if err != nil {
			return err
		}

		if resp.StatusCode() != 201 && resp.StatusCode() != 303 {
			return fmt.Errorf("remoteexec: unexpected start status %d: %s", resp.StatusCode(), resp.String())
		}

		loc := resp.Header().Get("Location")
		if loc == "" {
			return errors.New("remoteexec: missing Location header")
		}
		statusURL = loc
		return nil
	})

	c.breaker.after(err)
	if err != nil {
		return "", err
	}
	return statusURL, nil
}

func (c *Client) Poll(ctx context.Context, statusURL string) (StatusResponse, error) {
	if !c.breaker.allow() {
		return StatusResponse{}, ErrCircuitOpen
	}

	var out StatusResponse
	err := c.observe("remoteexec.poll", func() error {
		resp, err := c.cli.R().
			SetContext(ctx).
			SetResult(&out).
			Get(statusURL)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("remoteexec: poll status %d: %s", resp.StatusCode(), resp.String())
		}
		return nil
	})

	c.breaker.after(err)
	if err != nil {
		return StatusResponse{}, err
	}
	return out, nil
}

// Stop requests cancellation of an in-flight remote execution. Best-effort:
// the DELETE is sent once and is not retried.
func (c *Client) Stop(ctx context.Context, statusURL string) error {
	return c.observe("remoteexec.stop", func() error {
		resp, err := c.cli.R().SetContext(ctx).Delete(statusURL)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("remoteexec: stop status %d: %s", resp.StatusCode(), resp.String())
		}
		return nil
	})
}
