package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/url"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Config configures a Manager.
type Config struct {
	Endpoints []domain.Endpoint
	// ChainID is the only network identity an endpoint may report.
	ChainID       uint64
	DialTimeout   time.Duration
	CallTimeout   time.Duration
	FailoverDelay time.Duration
	// RatePerSec throttles outgoing calls; 0 disables throttling.
	RatePerSec float64
	// Dial defaults to DialEthclient.
	Dial DialFunc
}

// SwitchHook is called after the manager settles on a different endpoint than
// the one it last validated.
type SwitchHook func(from, to domain.EndpointStatus)

// Manager owns the endpoint list and the single active connection. Connect
// never gives up: it rotates through endpoints, pausing after each full wrap,
// until one validates or ctx is cancelled.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter

	// connMu serialises connect cycles so concurrent failing queries do not
	// rotate the endpoint twice.
	connMu sync.Mutex

	mu        sync.RWMutex
	client    Client
	gen       uint64
	lastValid int
	state     domain.ConnectionState
	onSwitch  SwitchHook
}

const defaultFailoverDelay = 2 * time.Second

// NewManager creates a Manager. It does not connect; call Connect.
func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("chain: %w: no endpoints", domain.ErrConfiguration)
	}
	if cfg.Dial == nil {
		cfg.Dial = DialEthclient
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 15 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.FailoverDelay <= 0 {
		cfg.FailoverDelay = defaultFailoverDelay
	}

	m := &Manager{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "chain")),
		lastValid: -1,
		state: domain.ConnectionState{
			ActiveIndex: 0,
			ActiveURL:   cfg.Endpoints[0].URL,
		},
	}
	if cfg.RatePerSec > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return m, nil
}

// OnSwitch registers a hook fired when the validated endpoint changes.
func (m *Manager) OnSwitch(h SwitchHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSwitch = h
}

// Connect establishes a validated connection starting at the current index.
// It returns nil once an endpoint reports the expected chain id, or ctx.Err()
// if the context ends first.
func (m *Manager) Connect(ctx context.Context) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	return m.connectLocked(ctx)
}

func (m *Manager) connectLocked(ctx context.Context) error {
	m.markDisconnected()

	n := len(m.cfg.Endpoints)
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		idx := m.activeIndex()
		ep := m.cfg.Endpoints[idx]
		client, chainID, block, err := m.tryEndpoint(ctx, ep.URL)
		if err == nil {
			m.setConnected(idx, client, chainID, block)
			m.logger.InfoContext(ctx, "chain endpoint validated",
				slog.Int("index", idx),
				slog.String("endpoint", hostOf(ep.URL)),
				slog.Uint64("chain_id", chainID),
				slog.Uint64("block", block),
			)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures := m.recordFailure()
		m.logger.WarnContext(ctx, "chain endpoint rejected",
			slog.Int("index", idx),
			slog.String("endpoint", hostOf(ep.URL)),
			slog.Int("consecutive_failures", failures),
			slog.String("error", err.Error()),
		)

		m.setIndex((idx + 1) % n)
		attempts++
		if attempts%n == 0 {
			m.logger.WarnContext(ctx, "all chain endpoints failed, backing off",
				slog.Int("endpoints", n),
				slog.Duration("delay", m.cfg.FailoverDelay),
			)
			if err := sleepCtx(ctx, m.cfg.FailoverDelay); err != nil {
				return err
			}
		}
	}
}

// tryEndpoint dials url and validates it by chain id and block height.
func (m *Manager) tryEndpoint(ctx context.Context, rawURL string) (Client, uint64, uint64, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()

	client, err := m.cfg.Dial(dialCtx, rawURL)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("dial: %w", err)
	}

	id, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, 0, 0, fmt.Errorf("chain id: %w", err)
	}
	if !id.IsUint64() || id.Uint64() != m.cfg.ChainID {
		client.Close()
		return nil, 0, 0, fmt.Errorf("%w: got %s, want %d", domain.ErrChainMismatch, id, m.cfg.ChainID)
	}

	block, err := client.BlockNumber(dialCtx)
	if err != nil {
		client.Close()
		return nil, 0, 0, fmt.Errorf("block number: %w", err)
	}
	return client, id.Uint64(), block, nil
}

// Handle returns the validated client, or domain.ErrNotConnected.
func (m *Manager) Handle() (Client, error) {
	c, _, err := m.handle()
	return c, err
}

func (m *Manager) handle() (Client, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.state.Connected || m.client == nil {
		return nil, m.gen, domain.ErrNotConnected
	}
	return m.client, m.gen, nil
}

// BlockHeight returns the latest block number.
func (m *Manager) BlockHeight(ctx context.Context) (uint64, error) {
	block, err := query(ctx, m, "block height", func(ctx context.Context, c Client) (uint64, error) {
		return c.BlockNumber(ctx)
	})
	if err == nil {
		m.mu.Lock()
		m.state.LastBlock = block
		m.mu.Unlock()
	}
	return block, err
}

// GasPrice returns the suggested gas price in wei.
func (m *Manager) GasPrice(ctx context.Context) (*big.Int, error) {
	return query(ctx, m, "gas price", func(ctx context.Context, c Client) (*big.Int, error) {
		return c.SuggestGasPrice(ctx)
	})
}

// NetworkIdentity returns the chain id reported by the active endpoint.
func (m *Manager) NetworkIdentity(ctx context.Context) (uint64, error) {
	id, err := query(ctx, m, "network identity", func(ctx context.Context, c Client) (*big.Int, error) {
		return c.ChainID(ctx)
	})
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

// Code returns the bytecode deployed at addr.
func (m *Manager) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	return query(ctx, m, "code", func(ctx context.Context, c Client) ([]byte, error) {
		return c.CodeAt(ctx, addr, nil)
	})
}

// IsContract reports whether addr holds contract code.
func (m *Manager) IsContract(ctx context.Context, addr common.Address) (bool, error) {
	code, err := m.Code(ctx, addr)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// Balance returns the native balance of addr in wei.
func (m *Manager) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return query(ctx, m, "balance", func(ctx context.Context, c Client) (*big.Int, error) {
		return c.BalanceAt(ctx, addr, nil)
	})
}

// NetworkInfo summarises the connected network.
func (m *Manager) NetworkInfo(ctx context.Context) (domain.NetworkInfo, error) {
	block, err := m.BlockHeight(ctx)
	if err != nil {
		return domain.NetworkInfo{}, err
	}
	gas, err := m.GasPrice(ctx)
	if err != nil {
		return domain.NetworkInfo{}, err
	}
	st := m.State()
	return domain.NetworkInfo{
		ChainID:      st.ChainID,
		BlockHeight:  block,
		GasPriceGwei: decimal.NewFromBigInt(gas, -9),
		Endpoint:     hostOf(st.ActiveURL),
	}, nil
}

// Health checks the active endpoint once. It never reconnects, so status
// readers cannot disturb the connection.
func (m *Manager) Health(ctx context.Context) bool {
	c, _, err := m.handle()
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	_, err = c.BlockNumber(ctx)
	return err == nil
}

// SwitchEndpoint forces the manager onto the endpoint at index and runs a
// connect cycle from there.
func (m *Manager) SwitchEndpoint(ctx context.Context, index int) error {
	if index < 0 || index >= len(m.cfg.Endpoints) {
		return fmt.Errorf("chain: switch endpoint %d: %w", index, domain.ErrEndpointIndex)
	}
	m.connMu.Lock()
	defer m.connMu.Unlock()

	m.logger.InfoContext(ctx, "manual endpoint switch",
		slog.Int("index", index),
		slog.String("endpoint", hostOf(m.cfg.Endpoints[index].URL)),
	)
	m.markDisconnected()
	m.setIndex(index)
	return m.connectLocked(ctx)
}

// Endpoints lists every endpoint in priority order with the active one marked.
func (m *Manager) Endpoints() []domain.EndpointStatus {
	st := m.State()
	out := make([]domain.EndpointStatus, len(m.cfg.Endpoints))
	for i, ep := range m.cfg.Endpoints {
		out[i] = domain.EndpointStatus{
			Endpoint: domain.Endpoint{URL: hostOf(ep.URL), Priority: ep.Priority},
			Index:    i,
			Active:   st.Connected && i == st.ActiveIndex,
		}
	}
	return out
}

// State returns a copy of the connection state.
func (m *Manager) State() domain.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.state
	st.ActiveURL = hostOf(st.ActiveURL)
	return st
}

// Close releases the active client.
func (m *Manager) Close() {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	m.state.Connected = false
}

// reconnect runs one connect cycle after a failed call, unless another caller
// already replaced the handle the failed call was using. The cycle starts at
// the current index and only rotates if that endpoint fails validation.
func (m *Manager) reconnect(ctx context.Context, usedGen uint64) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	m.mu.RLock()
	fresh := m.state.Connected && m.gen != usedGen
	m.mu.RUnlock()
	if fresh {
		return nil
	}

	return m.connectLocked(ctx)
}

// call runs fn against the current handle with the call timeout and the
// client-side rate limit applied.
func call[T any](ctx context.Context, m *Manager, fn func(context.Context, Client) (T, error)) (T, uint64, error) {
	var zero T
	c, gen, err := m.handle()
	if err != nil {
		return zero, gen, err
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return zero, gen, err
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	v, err := fn(callCtx, c)
	return v, gen, err
}

// query tries fn once, then runs exactly one connect cycle and tries once
// more before giving up with domain.ErrConnectivity.
func query[T any](ctx context.Context, m *Manager, op string, fn func(context.Context, Client) (T, error)) (T, error) {
	var zero T

	v, gen, err := call(ctx, m, fn)
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}

	m.logger.WarnContext(ctx, "chain query failed, reconnecting",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	m.markDisconnectedIf(gen)
	if cerr := m.reconnect(ctx, gen); cerr != nil {
		return zero, fmt.Errorf("chain: %s: %w", op, errors.Join(domain.ErrConnectivity, cerr))
	}

	v, gen, err = call(ctx, m, fn)
	if err != nil {
		m.markDisconnectedIf(gen)
		return zero, fmt.Errorf("chain: %s: %w: %v", op, domain.ErrConnectivity, err)
	}
	return v, nil
}

func (m *Manager) markDisconnected() {
	m.mu.Lock()
	m.state.Connected = false
	m.mu.Unlock()
}

// markDisconnectedIf flips the flag only if the handle of generation gen is
// still the current one.
func (m *Manager) markDisconnectedIf(gen uint64) {
	m.mu.Lock()
	if m.gen == gen {
		m.state.Connected = false
	}
	m.mu.Unlock()
}

func (m *Manager) activeIndex() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ActiveIndex
}

func (m *Manager) setIndex(idx int) {
	m.mu.Lock()
	m.state.ActiveIndex = idx
	m.state.ActiveURL = m.cfg.Endpoints[idx].URL
	m.mu.Unlock()
}

func (m *Manager) recordFailure() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.ConsecutiveFailures++
	return m.state.ConsecutiveFailures
}

func (m *Manager) setConnected(idx int, client Client, chainID, block uint64) {
	m.mu.Lock()
	old := m.client
	prev := m.lastValid
	m.client = client
	m.gen++
	m.lastValid = idx
	m.state.ActiveIndex = idx
	m.state.ActiveURL = m.cfg.Endpoints[idx].URL
	m.state.Connected = true
	m.state.ConsecutiveFailures = 0
	m.state.ChainID = chainID
	m.state.LastBlock = block
	m.state.LastValidatedAt = time.Now().UTC()
	hook := m.onSwitch
	m.mu.Unlock()

	if old != nil && old != client {
		old.Close()
	}
	if hook != nil && prev >= 0 && prev != idx {
		hook(m.status(prev), m.status(idx))
	}
}

func (m *Manager) status(idx int) domain.EndpointStatus {
	ep := m.cfg.Endpoints[idx]
	return domain.EndpointStatus{
		Endpoint: domain.Endpoint{URL: hostOf(ep.URL), Priority: ep.Priority},
		Index:    idx,
		Active:   idx == m.activeIndex(),
	}
}

// hostOf strips everything but scheme and host so provider keys embedded in
// RPC paths never reach logs or status output.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
