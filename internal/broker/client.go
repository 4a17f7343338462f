package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"rabbitwatch/internal/metrics"
	"rabbitwatch/internal/models"
)

const (
	EndpointOverview = "overview"
	EndpointNodes    = "nodes"
	EndpointQueues   = "queues"
)

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Timeout  time.Duration
}

// Address is host:port of the management listener.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// UnavailableError reports that a snapshot could not be taken. It always
// refers to the first sub-read that failed.
type UnavailableError struct {
	Endpoint string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("management api %s unavailable: %v", e.Endpoint, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	log     zerolog.Logger
	now     func() time.Time
}

func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		baseURL: "http://" + cfg.Address() + "/api",
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     logger,
		now:     time.Now,
	}
}

func (c *Client) Address() string { return c.cfg.Address() }

// FetchSnapshot reads overview, nodes and queues concurrently. Either all three
// succeed or the call fails with *UnavailableError; the first failing read
// cancels the others.
func (c *Client) FetchSnapshot(ctx context.Context) (models.Snapshot, error) {
	var (
		ov     OverviewInfo
		nodes  []NodeInfo
		queues []QueueInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.get(gctx, EndpointOverview, &ov) })
	g.Go(func() error { return c.get(gctx, EndpointNodes, &nodes) })
	g.Go(func() error { return c.get(gctx, EndpointQueues, &queues) })
	if err := g.Wait(); err != nil {
		var ue *UnavailableError
		if errors.As(err, &ue) {
			metrics.PollFailuresTotal.WithLabelValues(ue.Endpoint).Inc()
		}
		c.log.Warn().Err(err).Str("addr", c.Address()).Msg("snapshot failed")
		return models.Snapshot{}, err
	}
	snap := NormalizeSnapshot(ov, nodes, queues, c.now().UTC())
	c.log.Debug().
		Str("version", snap.Overview.Version).
		Int("nodes", len(snap.Nodes)).
		Int("queues", len(snap.Queues)).
		Msg("snapshot taken")
	return snap, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	b, err := c.do(ctx, http.MethodGet, "/"+endpoint)
	if err != nil {
		return &UnavailableError{Endpoint: endpoint, Err: err}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &UnavailableError{Endpoint: endpoint, Err: fmt.Errorf("decode %s: %w", endpoint, err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, p string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+p, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.cfg.User, c.cfg.Password)
	req.Header.Set("Accept", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, 32<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := strings.TrimSpace(string(b))
		if len(msg) > 256 {
			msg = msg[:256]
		}
		return nil, &StatusError{Code: res.StatusCode, Body: msg}
	}
	return b, nil
}
