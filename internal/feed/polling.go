package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"whale-mirror/internal/observability"
)

// PollingConfig configures the REST polling transport.
type PollingConfig struct {
	// Interval between polling sweeps over the subscribed addresses.
	Interval time.Duration
	// RequestsPerSecond limits venue API calls across all addresses.
	RequestsPerSecond float64
	// FrameBuffer is the capacity of the outbound frame channel.
	FrameBuffer int
}

// DefaultPollingConfig returns default polling configuration.
func DefaultPollingConfig() PollingConfig {
	return PollingConfig{
		Interval:          5 * time.Second,
		RequestsPerSecond: 2,
		FrameBuffer:       1024,
	}
}

// PollingClient implements Source by polling the venue's activity endpoint
// per subscribed address. Same contract as the websocket client: frames out,
// reconciliation in; per-trade cursors make repeated sweeps emit each trade
// once.
type PollingClient struct {
	baseURL string
	config  PollingConfig
	metrics *observability.Metrics
	logger  *log.Logger
	http    *http.Client
	limiter *rate.Limiter

	subMu      sync.Mutex
	subscribed map[string]struct{}
	cursors    map[string]string // address -> last seen trade id

	frames   chan RawFrame
	done     chan struct{}
	wg       sync.WaitGroup
	started  atomic.Bool
	closed   atomic.Bool
	degraded atomic.Bool
}

// NewPollingClient creates a polling feed client.
func NewPollingClient(baseURL string, config *PollingConfig, metrics *observability.Metrics, logger *log.Logger) *PollingClient {
	cfg := DefaultPollingConfig()
	if config != nil {
		cfg = *config
	}
	if metrics == nil {
		metrics = observability.Nop()
	}
	if logger == nil {
		logger = log.Default()
	}

	return &PollingClient{
		baseURL:    baseURL,
		config:     cfg,
		metrics:    metrics,
		logger:     logger,
		http:       &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		subscribed: make(map[string]struct{}),
		cursors:    make(map[string]string),
		frames:     make(chan RawFrame, cfg.FrameBuffer),
		done:       make(chan struct{}),
	}
}

// Connect starts the polling loop. There is no transport handshake to retry;
// endpoint failures surface per sweep and the next sweep tries again.
func (p *PollingClient) Connect(ctx context.Context) error {
	if p.closed.Load() {
		return fmt.Errorf("feed: polling client closed")
	}
	if p.started.Swap(true) {
		return nil
	}

	p.wg.Add(1)
	go p.pollLoop()
	p.logger.Printf("[feed] polling %s every %v", p.baseURL, p.config.Interval)
	return nil
}

// ReconcileSubscriptions updates the polled address set. Idempotent.
func (p *PollingClient) ReconcileSubscriptions(desired []string) error {
	if p.closed.Load() {
		return fmt.Errorf("feed: polling client closed")
	}

	want := make(map[string]struct{}, len(desired))
	for _, a := range desired {
		want[a] = struct{}{}
	}

	p.subMu.Lock()
	added, removed := 0, 0
	for a := range want {
		if _, ok := p.subscribed[a]; !ok {
			p.subscribed[a] = struct{}{}
			added++
		}
	}
	for a := range p.subscribed {
		if _, ok := want[a]; !ok {
			delete(p.subscribed, a)
			delete(p.cursors, a)
			removed++
		}
	}
	n := len(p.subscribed)
	p.subMu.Unlock()

	p.metrics.ActiveSubscriptions.Set(float64(n))
	if added > 0 || removed > 0 {
		p.logger.Printf("[feed] reconciled polled addresses: +%d -%d (total %d)", added, removed, n)
	}
	return nil
}

// Subscribed returns the currently polled addresses, sorted.
func (p *PollingClient) Subscribed() []string {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	out := make([]string, 0, len(p.subscribed))
	for a := range p.subscribed {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Frames returns the stream of raw frames. Closed only on Close.
func (p *PollingClient) Frames() <-chan RawFrame {
	return p.frames
}

// State reports CONNECTED while the loop runs and the endpoint answers.
// A sweep where every polled address fails marks the transport DISCONNECTED
// until a poll succeeds again.
func (p *PollingClient) State() State {
	if p.closed.Load() || !p.started.Load() {
		return StateDisconnected
	}
	if p.degraded.Load() {
		return StateDisconnected
	}
	return StateConnected
}

// Close stops the polling loop and closes the frame channel. Idempotent.
func (p *PollingClient) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	close(p.done)
	if p.started.Load() {
		p.wg.Wait()
	}
	close(p.frames)
	return nil
}

func (p *PollingClient) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep polls every subscribed address once, rate limited.
func (p *PollingClient) sweep() {
	attempted, failed := 0, 0
	for _, addr := range p.Subscribed() {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.Interval)
		err := p.limiter.Wait(ctx)
		cancel()
		if err != nil {
			return
		}

		attempted++
		if err := p.pollAddress(addr); err != nil {
			failed++
			p.logger.Printf("[feed] poll %s: %v", addr, err)
		}

		select {
		case <-p.done:
			return
		default:
		}
	}
	p.degraded.Store(attempted > 0 && failed == attempted)
}

// pollAddress fetches recent activity for one address and emits frames for
// trades newer than the cursor.
func (p *PollingClient) pollAddress(addr string) error {
	u := fmt.Sprintf("%s/activity?address=%s", p.baseURL, url.QueryEscape(addr))

	resp, err := p.http.Get(u)
	if err != nil {
		return fmt.Errorf("get activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get activity: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read activity: %w", err)
	}

	// The endpoint returns newest-first frames, each carrying a trade id.
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return fmt.Errorf("parse activity: %w", err)
	}

	p.subMu.Lock()
	cursor := p.cursors[addr]
	p.subMu.Unlock()

	// Emit oldest-first, stopping at the cursor.
	var fresh []json.RawMessage
	for _, item := range items {
		var peek struct {
			TradeID string `json:"trade_id"`
		}
		if err := json.Unmarshal(item, &peek); err != nil || peek.TradeID == "" {
			continue
		}
		if peek.TradeID == cursor {
			break
		}
		fresh = append(fresh, item)
	}

	now := time.Now().UnixMilli()
	for i := len(fresh) - 1; i >= 0; i-- {
		p.metrics.FramesReceived.Inc()
		select {
		case p.frames <- RawFrame{Data: fresh[i], ReceivedAt: now}:
		case <-p.done:
			return nil
		}
	}

	if len(fresh) > 0 {
		var head struct {
			TradeID string `json:"trade_id"`
		}
		_ = json.Unmarshal(fresh[0], &head)
		p.subMu.Lock()
		p.cursors[addr] = head.TradeID
		p.subMu.Unlock()
	}
	return nil
}

var _ Source = (*PollingClient)(nil)
