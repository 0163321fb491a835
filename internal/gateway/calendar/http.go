package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pulsebot/internal/planning"
	"pulsebot/pkg/logx"
)

// HTTPConfig points at a free/busy endpoint, typically a small sidecar that
// proxies the actual calendar provider and owns the OAuth lifecycle.
type HTTPConfig struct {
	BaseURL string
	Token   string        // optional bearer token
	Timeout time.Duration // 0 means a sensible default
}

// HTTPGateway fetches busy intervals from GET {base}/freebusy?user=&date=.
//
// Responses: 200 with a JSON array of {start, end} (RFC 3339); 404 means the
// user has no connected calendar.
type HTTPGateway struct {
	cfg  HTTPConfig
	http *http.Client
	log  logx.Logger
}

func NewHTTP(cfg HTTPConfig, log logx.Logger) (*HTTPGateway, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("calendar base_url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTPGateway{cfg: cfg, http: &http.Client{Timeout: timeout}, log: log}, nil
}

type busyIntervalJSON struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (g *HTTPGateway) GetBusyIntervals(ctx context.Context, userID int64, date time.Time) ([]planning.Interval, error) {
	u, err := url.Parse(strings.TrimRight(g.cfg.BaseURL, "/") + "/freebusy")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("user", strconv.FormatInt(userID, 10))
	q.Set("date", date.Format(time.DateOnly))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if g.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar fetch: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotConnected
	default:
		return nil, fmt.Errorf("calendar fetch: unexpected status %d", resp.StatusCode)
	}

	var raw []busyIntervalJSON
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("calendar fetch: decode: %w", err)
	}
	out := make([]planning.Interval, 0, len(raw))
	for _, iv := range raw {
		out = append(out, planning.Interval{Start: iv.Start, End: iv.End})
	}
	return out, nil
}
