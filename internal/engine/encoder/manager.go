package encoder

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/logging"
	"github.com/healthsync/hybrid-engine/pkg/errors"
	"github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

// State is the encoder manager's lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// Snapshot is a side-effect-free view of the manager, consumed by /health
// and /models/status.  Reading a snapshot never triggers a load.
type Snapshot struct {
	State        State
	Mode         diagnosis.InferenceMode
	ModelID      string
	LoadAttempts int
	FellBack     bool
	LastError    string
}

// ProviderFactory constructs one encoding provider.  Factories run under the
// manager's single-flight load, so they may be expensive.
type ProviderFactory func(ctx context.Context) (Provider, error)

// ManagerConfig configures load policy.
type ManagerConfig struct {
	ModelID             string
	EmbeddingDim        int
	AllowRemoteFallback bool
	LoadTimeout         time.Duration
}

// Manager owns the encoder lifecycle: Uninitialized → Loading →
// Ready | Failed.  The first Encode triggers the load; concurrent callers
// block on the same attempt rather than starting their own.  A failed local
// load falls back to the remote provider when allowed; if both paths fail
// the manager parks in Failed until Reinitialize.
type Manager struct {
	cfg           ManagerConfig
	localFactory  ProviderFactory
	remoteFactory ProviderFactory
	logger        logging.Logger

	mu       sync.Mutex
	state    State
	provider Provider
	loadDone chan struct{} // non-nil while Loading; closed on resolution
	attempts int
	fellBack bool
	lastErr  error
}

// NewManager builds a manager in the Uninitialized state.  remoteFactory may
// be nil when no remote path is configured.
func NewManager(cfg ManagerConfig, localFactory, remoteFactory ProviderFactory, logger logging.Logger) *Manager {
	if cfg.LoadTimeout == 0 {
		cfg.LoadTimeout = 120 * time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Manager{
		cfg:           cfg,
		localFactory:  localFactory,
		remoteFactory: remoteFactory,
		logger:        logger.Named("encoder_manager"),
		state:         StateUninitialized,
	}
}

// Encode embeds text through the active provider, loading it first if
// needed.  Empty text is defined to carry zero information: it returns the
// zero vector of the configured dimension without forcing a model load.
func (m *Manager) Encode(ctx context.Context, text string) (diagnosis.TextEmbedding, error) {
	if strings.TrimSpace(text) == "" {
		return make(diagnosis.TextEmbedding, m.cfg.EmbeddingDim), nil
	}
	p, err := m.ensureReady(ctx)
	if err != nil {
		return nil, err
	}
	return p.Encode(ctx, text)
}

// ensureReady returns the active provider, running or joining the
// single-flight load as required.
func (m *Manager) ensureReady(ctx context.Context) (Provider, error) {
	for {
		m.mu.Lock()
		switch m.state {
		case StateReady:
			p := m.provider
			m.mu.Unlock()
			return p, nil

		case StateFailed:
			err := m.lastErr
			m.mu.Unlock()
			return nil, errors.New(errors.ErrCodeEncoderUnavailable,
				"no encoding path is available").WithCause(err)

		case StateLoading:
			done := m.loadDone
			m.mu.Unlock()
			select {
			case <-done:
				// Re-check; the attempt resolved to Ready or Failed.
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), errors.ErrCodeEncoderUnavailable,
					"cancelled while waiting for encoder load")
			}

		case StateUninitialized:
			m.state = StateLoading
			m.attempts++
			m.loadDone = make(chan struct{})
			done := m.loadDone
			m.mu.Unlock()
			m.runLoad(done)
		}
	}
}

// runLoad performs one load attempt and resolves the state machine.  It runs
// on the caller's goroutine but under its own timeout, detached from the
// request context: a load outlives the request that triggered it so later
// requests can join the result.
func (m *Manager) runLoad(done chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.LoadTimeout)
	defer cancel()

	start := time.Now()
	provider, fellBack, err := m.loadProvider(ctx)

	m.mu.Lock()
	if err != nil {
		m.state = StateFailed
		m.lastErr = err
		m.logger.Error("encoder load failed",
			logging.Int("attempt", m.attempts),
			logging.Duration("elapsed", time.Since(start)),
			logging.Err(err))
	} else {
		m.state = StateReady
		m.provider = provider
		m.fellBack = fellBack
		m.lastErr = nil
		m.logger.Info("encoder ready",
			logging.String("mode", string(provider.Mode())),
			logging.Bool("fell_back", fellBack),
			logging.Duration("elapsed", time.Since(start)))
	}
	m.loadDone = nil
	m.mu.Unlock()
	close(done)
}

// loadProvider tries the local path, then the remote path when fallback is
// allowed.  The returned bool reports whether the remote provider serves
// because the local one failed.
func (m *Manager) loadProvider(ctx context.Context) (Provider, bool, error) {
	var localErr error
	if m.localFactory != nil {
		p, err := m.localFactory(ctx)
		if err == nil {
			return p, false, nil
		}
		localErr = err
		m.logger.Warn("local encoder load failed", logging.Err(err))
	}

	if m.remoteFactory == nil {
		if localErr != nil {
			return nil, false, localErr
		}
		return nil, false, errors.New(errors.ErrCodeEncoderLoadFailed, "no encoding provider is configured")
	}
	if m.localFactory != nil && !m.cfg.AllowRemoteFallback {
		return nil, false, localErr
	}

	p, err := m.remoteFactory(ctx)
	if err != nil {
		if localErr != nil {
			return nil, false, errors.Wrap(err, errors.ErrCodeEncoderLoadFailed,
				"both local and remote encoding paths failed").
				WithDetail("local=" + localErr.Error())
		}
		return nil, false, err
	}
	return p, m.localFactory != nil, nil
}

// FellBack reports whether the serving provider is the remote fallback.
func (m *Manager) FellBack() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateReady && m.fellBack
}

// Snapshot returns the current state without side effects.  Mode is always a
// member of the documented enum: before a provider is loaded it reports the
// prospective path (local when a local factory is configured, api otherwise),
// so /health and result payloads never carry an empty mode.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		State:        m.state,
		ModelID:      m.cfg.ModelID,
		LoadAttempts: m.attempts,
		FellBack:     m.fellBack,
	}
	switch {
	case m.provider != nil:
		s.Mode = m.provider.Mode()
		s.ModelID = m.provider.ModelID()
	case m.localFactory != nil:
		s.Mode = diagnosis.InferenceModeLocal
	case m.remoteFactory != nil:
		s.Mode = diagnosis.InferenceModeRemote
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// Reinitialize resets a Failed manager to Uninitialized so the next request
// retries the load.  It has no effect in any other state.
func (m *Manager) Reinitialize() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateFailed {
		return false
	}
	m.state = StateUninitialized
	m.lastErr = nil
	m.fellBack = false
	return true
}

// Close releases the active provider, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.provider != nil {
		err := m.provider.Close()
		m.provider = nil
		return err
	}
	return nil
}
