package encoder

import (
	"context"
	"os"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/logging"
	"github.com/healthsync/hybrid-engine/pkg/errors"
	"github.com/healthsync/hybrid-engine/pkg/types/diagnosis"
)

// LocalConfig configures the in-process ONNX encoder.
type LocalConfig struct {
	ModelID           string
	ModelPath         string
	TokenizerPath     string
	OrtSharedLibrary  string
	EmbeddingDim      int
	MaxSequenceLength int
}

// ortInit guards environment initialization; the ONNX runtime environment is
// process-global and must be initialized exactly once.
var ortInit struct {
	once sync.Once
	err  error
}

func initOrtEnvironment(sharedLibrary string) error {
	ortInit.once.Do(func() {
		if sharedLibrary != "" {
			ort.SetSharedLibraryPath(sharedLibrary)
		}
		ortInit.err = ort.InitializeEnvironment()
	})
	return ortInit.err
}

// localProvider runs the clinical BERT model through onnxruntime: tokenize,
// forward pass, mean-pool the last hidden state over the attention mask,
// L2-normalize.
type localProvider struct {
	cfg     LocalConfig
	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession
	logger  logging.Logger

	// The runtime session is not safe for concurrent Run calls with shared
	// output tensors, so encodes serialize here.
	mu sync.Mutex
}

// NewLocalProvider loads the tokenizer and ONNX session.  Every failure maps
// to ENC_003 so the manager can decide whether to fall back to the remote
// path.
func NewLocalProvider(cfg LocalConfig, logger logging.Logger) (Provider, error) {
	if cfg.EmbeddingDim <= 0 {
		return nil, errors.New(errors.ErrCodeEncoderLoadFailed, "embedding dimension must be positive")
	}
	if cfg.MaxSequenceLength <= 0 {
		cfg.MaxSequenceLength = 512
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	for _, path := range []string{cfg.ModelPath, cfg.TokenizerPath} {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.New(errors.ErrCodeEncoderLoadFailed, "encoder artifact not found").
				WithDetail("path=" + path).WithCause(err)
		}
	}

	if err := initOrtEnvironment(cfg.OrtSharedLibrary); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEncoderLoadFailed, "failed to initialize onnx runtime")
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEncoderLoadFailed, "failed to load tokenizer").
			WithDetail("path=" + cfg.TokenizerPath)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEncoderLoadFailed, "failed to load onnx model").
			WithDetail("path=" + cfg.ModelPath)
	}

	logger.Info("local encoder loaded",
		logging.String("model", cfg.ModelID),
		logging.Int("embedding_dim", cfg.EmbeddingDim),
		logging.Int("max_sequence_length", cfg.MaxSequenceLength))

	return &localProvider{cfg: cfg, tk: tk, session: session, logger: logger}, nil
}

func (p *localProvider) Mode() diagnosis.InferenceMode { return diagnosis.InferenceModeLocal }
func (p *localProvider) ModelID() string               { return p.cfg.ModelID }

func (p *localProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		if err := p.session.Destroy(); err != nil {
			return err
		}
		p.session = nil
	}
	return nil
}

func (p *localProvider) Encode(ctx context.Context, text string) (diagnosis.TextEmbedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEncoderUnavailable, "encode cancelled")
	}

	encoding, err := p.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEncoderUnavailable, "tokenization failed")
	}

	seqLen := len(encoding.Ids)
	if seqLen > p.cfg.MaxSequenceLength {
		seqLen = p.cfg.MaxSequenceLength
	}
	if seqLen == 0 {
		return make(diagnosis.TextEmbedding, p.cfg.EmbeddingDim), nil
	}

	inputIds := make([]int64, seqLen)
	attentionMask := make([]int64, seqLen)
	tokenTypeIds := make([]int64, seqLen)
	for i := 0; i < seqLen; i++ {
		inputIds[i] = int64(encoding.Ids[i])
		attentionMask[i] = int64(encoding.AttentionMask[i])
		tokenTypeIds[i] = int64(encoding.TypeIds[i])
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil, errors.New(errors.ErrCodeEncoderUnavailable, "local encoder is closed")
	}

	shape := ort.NewShape(1, int64(seqLen))
	idsTensor, err := ort.NewTensor(shape, inputIds)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEncoderUnavailable, "failed to build input tensor")
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEncoderUnavailable, "failed to build input tensor")
	}
	defer maskTensor.Destroy()
	typeTensor, err := ort.NewTensor(shape, tokenTypeIds)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEncoderUnavailable, "failed to build input tensor")
	}
	defer typeTensor.Destroy()

	outTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(seqLen), int64(p.cfg.EmbeddingDim)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEncoderUnavailable, "failed to build output tensor")
	}
	defer outTensor.Destroy()

	err = p.session.Run(
		[]ort.ArbitraryTensor{idsTensor, maskTensor, typeTensor},
		[]ort.ArbitraryTensor{outTensor})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEncoderUnavailable, "onnx inference failed")
	}

	return meanPool(outTensor.GetData(), attentionMask, p.cfg.EmbeddingDim), nil
}

// meanPool averages the token vectors where the attention mask is set, then
// L2-normalizes the result.
func meanPool(hidden []float32, attentionMask []int64, dim int) diagnosis.TextEmbedding {
	pooled := make([]float32, dim)
	var count float64
	for t, m := range attentionMask {
		if m == 0 {
			continue
		}
		count++
		base := t * dim
		for d := 0; d < dim; d++ {
			pooled[d] += hidden[base+d]
		}
	}
	if count > 0 {
		for d := range pooled {
			pooled[d] = float32(float64(pooled[d]) / count)
		}
	}
	return l2Normalize(pooled)
}
