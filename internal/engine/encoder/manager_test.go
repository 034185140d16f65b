package encoder_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthsync/hybrid-engine/internal/engine/encoder"
	"github.com/healthsync/hybrid-engine/pkg/errors"
	"github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

// fakeProvider returns a fixed embedding and records calls.
type fakeProvider struct {
	mode      diagnosis.InferenceMode
	modelID   string
	embedding diagnosis.TextEmbedding
	encodeErr error
	encodes   atomic.Int64
	closed    atomic.Bool
}

func (f *fakeProvider) Encode(_ context.Context, _ string) (diagnosis.TextEmbedding, error) {
	f.encodes.Add(1)
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	return f.embedding, nil
}

func (f *fakeProvider) Mode() diagnosis.InferenceMode { return f.mode }
func (f *fakeProvider) ModelID() string               { return f.modelID }
func (f *fakeProvider) Close() error                  { f.closed.Store(true); return nil }

func localFake() *fakeProvider {
	return &fakeProvider{
		mode:      diagnosis.InferenceModeLocal,
		modelID:   "clinical-bert-onnx",
		embedding: diagnosis.TextEmbedding{1, 0, 0, 0},
	}
}

func remoteFake() *fakeProvider {
	return &fakeProvider{
		mode:      diagnosis.InferenceModeRemote,
		modelID:   "clinical-bert-hosted",
		embedding: diagnosis.TextEmbedding{0, 1, 0, 0},
	}
}

// countingFactory wraps a factory and counts invocations.
type countingFactory struct {
	calls   atomic.Int64
	factory encoder.ProviderFactory
}

func (c *countingFactory) fn(ctx context.Context) (encoder.Provider, error) {
	c.calls.Add(1)
	return c.factory(ctx)
}

func managerConfig() encoder.ManagerConfig {
	return encoder.ManagerConfig{
		ModelID:             "clinical-bert-onnx",
		EmbeddingDim:        4,
		AllowRemoteFallback: true,
		LoadTimeout:         5 * time.Second,
	}
}

func TestManager_InitialState(t *testing.T) {
	t.Parallel()

	m := encoder.NewManager(managerConfig(), nil, nil, nil)
	snap := m.Snapshot()

	assert.Equal(t, encoder.StateUninitialized, snap.State)
	assert.Equal(t, 0, snap.LoadAttempts)
	assert.Empty(t, snap.LastError)
}

// Mode stays inside the local|api enum even before the first load, so a cold
// /health or an empty-notes result never reports an empty inference mode.
func TestManager_SnapshotReportsProspectiveMode(t *testing.T) {
	t.Parallel()

	local := func(context.Context) (encoder.Provider, error) { return localFake(), nil }
	remote := func(context.Context) (encoder.Provider, error) { return remoteFake(), nil }

	m := encoder.NewManager(managerConfig(), local, remote, nil)
	assert.Equal(t, diagnosis.InferenceModeLocal, m.Snapshot().Mode)

	m = encoder.NewManager(managerConfig(), nil, remote, nil)
	assert.Equal(t, diagnosis.InferenceModeRemote, m.Snapshot().Mode)
}

func TestManager_FirstEncodeLoadsLocal(t *testing.T) {
	t.Parallel()

	local := localFake()
	cf := &countingFactory{factory: func(context.Context) (encoder.Provider, error) {
		return local, nil
	}}
	m := encoder.NewManager(managerConfig(), cf.fn, nil, nil)

	vec, err := m.Encode(context.Background(), "chest pain on exertion")
	require.NoError(t, err)
	assert.Equal(t, local.embedding, vec)
	assert.EqualValues(t, 1, cf.calls.Load())

	snap := m.Snapshot()
	assert.Equal(t, encoder.StateReady, snap.State)
	assert.Equal(t, diagnosis.InferenceModeLocal, snap.Mode)
	assert.Equal(t, "clinical-bert-onnx", snap.ModelID)
	assert.Equal(t, 1, snap.LoadAttempts)
	assert.False(t, snap.FellBack)
}

func TestManager_ConcurrentFirstRequests_SingleLoad(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	local := localFake()
	cf := &countingFactory{factory: func(context.Context) (encoder.Provider, error) {
		<-release
		return local, nil
	}}
	m := encoder.NewManager(managerConfig(), cf.fn, nil, nil)

	const n = 32
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = m.Encode(context.Background(), "dyspnea")
		}(i)
	}

	// Let every goroutine pile up behind the one in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range results {
		require.NoError(t, err, "request %d", i)
	}
	assert.EqualValues(t, 1, cf.calls.Load())
	assert.Equal(t, 1, m.Snapshot().LoadAttempts)
}

func TestManager_LocalFails_FallsBackToRemote(t *testing.T) {
	t.Parallel()

	remote := remoteFake()
	m := encoder.NewManager(managerConfig(),
		func(context.Context) (encoder.Provider, error) {
			return nil, errors.New(errors.ErrCodeEncoderLoadFailed, "onnx artifact missing")
		},
		func(context.Context) (encoder.Provider, error) {
			return remote, nil
		},
		nil)

	vec, err := m.Encode(context.Background(), "polyuria and polydipsia")
	require.NoError(t, err)
	assert.Equal(t, remote.embedding, vec)

	snap := m.Snapshot()
	assert.Equal(t, encoder.StateReady, snap.State)
	assert.Equal(t, diagnosis.InferenceModeRemote, snap.Mode)
	assert.Equal(t, "clinical-bert-hosted", snap.ModelID)
	assert.True(t, snap.FellBack)
	assert.True(t, m.FellBack())
}

func TestManager_FallbackDisabled_LocalErrorSurfaces(t *testing.T) {
	t.Parallel()

	cfg := managerConfig()
	cfg.AllowRemoteFallback = false
	remoteCalls := atomic.Int64{}
	m := encoder.NewManager(cfg,
		func(context.Context) (encoder.Provider, error) {
			return nil, errors.New(errors.ErrCodeEncoderLoadFailed, "onnx artifact missing")
		},
		func(context.Context) (encoder.Provider, error) {
			remoteCalls.Add(1)
			return remoteFake(), nil
		},
		nil)

	_, err := m.Encode(context.Background(), "fatigue")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEncoderUnavailable))
	assert.EqualValues(t, 0, remoteCalls.Load())
	assert.Equal(t, encoder.StateFailed, m.Snapshot().State)
}

func TestManager_BothPathsFail_ParksInFailed(t *testing.T) {
	t.Parallel()

	m := encoder.NewManager(managerConfig(),
		func(context.Context) (encoder.Provider, error) {
			return nil, errors.New(errors.ErrCodeEncoderLoadFailed, "onnx artifact missing")
		},
		func(context.Context) (encoder.Provider, error) {
			return nil, errors.New(errors.ErrCodeEncoderLoadFailed, "remote token rejected")
		},
		nil)

	_, err := m.Encode(context.Background(), "syncope")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEncoderUnavailable))

	snap := m.Snapshot()
	assert.Equal(t, encoder.StateFailed, snap.State)
	assert.Equal(t, 1, snap.LoadAttempts)
	assert.NotEmpty(t, snap.LastError)

	// Subsequent requests fail fast without a new load attempt.
	_, err = m.Encode(context.Background(), "syncope")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEncoderUnavailable))
	assert.Equal(t, 1, m.Snapshot().LoadAttempts)
}

func TestManager_Reinitialize_ResetsFailedOnly(t *testing.T) {
	t.Parallel()

	attempt := atomic.Int64{}
	local := localFake()
	m := encoder.NewManager(managerConfig(),
		func(context.Context) (encoder.Provider, error) {
			if attempt.Add(1) == 1 {
				return nil, errors.New(errors.ErrCodeEncoderLoadFailed, "transient artifact fetch failure")
			}
			return local, nil
		},
		nil,
		nil)

	_, err := m.Encode(context.Background(), "headache")
	require.Error(t, err)
	require.Equal(t, encoder.StateFailed, m.Snapshot().State)

	assert.True(t, m.Reinitialize())
	assert.Equal(t, encoder.StateUninitialized, m.Snapshot().State)
	assert.Empty(t, m.Snapshot().LastError)

	vec, err := m.Encode(context.Background(), "headache")
	require.NoError(t, err)
	assert.Equal(t, local.embedding, vec)
	assert.Equal(t, 2, m.Snapshot().LoadAttempts)

	// No effect once Ready.
	assert.False(t, m.Reinitialize())
	assert.Equal(t, encoder.StateReady, m.Snapshot().State)
}

func TestManager_EmptyText_ZeroVectorWithoutLoad(t *testing.T) {
	t.Parallel()

	cf := &countingFactory{factory: func(context.Context) (encoder.Provider, error) {
		return localFake(), nil
	}}
	m := encoder.NewManager(managerConfig(), cf.fn, nil, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		vec, err := m.Encode(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, make(diagnosis.TextEmbedding, 4), vec)
		assert.True(t, vec.IsZero())
	}

	assert.EqualValues(t, 0, cf.calls.Load())
	assert.Equal(t, encoder.StateUninitialized, m.Snapshot().State)
}

func TestManager_SnapshotHasNoSideEffects(t *testing.T) {
	t.Parallel()

	cf := &countingFactory{factory: func(context.Context) (encoder.Provider, error) {
		return localFake(), nil
	}}
	m := encoder.NewManager(managerConfig(), cf.fn, nil, nil)

	for i := 0; i < 10; i++ {
		_ = m.Snapshot()
	}
	assert.EqualValues(t, 0, cf.calls.Load())
	assert.Equal(t, encoder.StateUninitialized, m.Snapshot().State)
}

func TestManager_NoProvidersConfigured(t *testing.T) {
	t.Parallel()

	m := encoder.NewManager(managerConfig(), nil, nil, nil)
	_, err := m.Encode(context.Background(), "nausea")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEncoderUnavailable))
}

func TestManager_Close_ReleasesProvider(t *testing.T) {
	t.Parallel()

	local := localFake()
	m := encoder.NewManager(managerConfig(),
		func(context.Context) (encoder.Provider, error) { return local, nil },
		nil, nil)

	_, err := m.Encode(context.Background(), "edema")
	require.NoError(t, err)

	require.NoError(t, m.Close())
	assert.True(t, local.closed.Load())
}
