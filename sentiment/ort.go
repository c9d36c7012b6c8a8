package sentiment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortEnvMu   sync.Mutex
	ortEnvRefs int
)

func acquireOrtEnv(libPath string) error {
	ortEnvMu.Lock()
	defer ortEnvMu.Unlock()
	if ortEnvRefs == 0 && !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	ortEnvRefs++
	return nil
}

func releaseOrtEnv() {
	ortEnvMu.Lock()
	defer ortEnvMu.Unlock()
	if ortEnvRefs == 0 {
		return
	}
	ortEnvRefs--
	if ortEnvRefs == 0 && ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
}

// textEncoder turns a single text into token ids and segment ids.
type textEncoder interface {
	encode(text string) (ids, typeIDs []int, err error)
}

type hfEncoder struct {
	tk *tokenizer.Tokenizer
}

func (h hfEncoder) encode(text string) ([]int, []int, error) {
	enc, err := h.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, nil, err
	}
	return enc.Ids, enc.TypeIds, nil
}

// OrtClassifier runs a sequence classification ONNX graph through ONNX Runtime.
type OrtClassifier struct {
	cfg     ModelConfig
	enc     textEncoder
	padID   int
	session *ort.DynamicAdvancedSession
	mu      sync.RWMutex
}

// LoadOrtClassifier is the production Loader.
func LoadOrtClassifier(_ context.Context, cfg ModelConfig) (Classifier, error) {
	return NewOrtClassifier(cfg)
}

// NewOrtClassifier loads tokenizer.json and model.onnx from cfg.ModelPath.
func NewOrtClassifier(cfg ModelConfig) (*OrtClassifier, error) {
	if cfg.ModelID == "" && cfg.ModelPath != "" {
		cfg.ModelID = filepath.Base(filepath.Clean(cfg.ModelPath))
	}
	for _, p := range []string{cfg.OnnxPath(), cfg.TokenizerPath()} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("model artifact: %w", err)
		}
	}
	tk, err := pretrained.FromFile(cfg.TokenizerPath())
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	if err := acquireOrtEnv(cfg.OrtLib); err != nil {
		return nil, err
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		releaseOrtEnv()
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if cfg.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			releaseOrtEnv()
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.OnnxPath(), cfg.InputNames, []string{cfg.OutputName}, opts)
	if err != nil {
		releaseOrtEnv()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &OrtClassifier{
		cfg:     cfg,
		enc:     hfEncoder{tk: tk},
		padID:   resolvePadID(tk),
		session: session,
	}, nil
}

func resolvePadID(tk *tokenizer.Tokenizer) int {
	for _, tok := range []string{"[PAD]", "<pad>", "<PAD>"} {
		if id, ok := tk.TokenToId(tok); ok {
			return id
		}
	}
	return 0
}

// ModelID returns the identifier used for cache keys.
func (o *OrtClassifier) ModelID() string {
	return o.cfg.ModelID
}

// Close releases ORT resources.
func (o *OrtClassifier) Close() error {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	err := o.session.Destroy()
	o.session = nil
	releaseOrtEnv()
	return err
}

// Classify tokenizes one batch, runs the forward pass and decodes the logits.
func (o *OrtClassifier) Classify(ctx context.Context, texts []string) ([]Prediction, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.session == nil {
		return nil, errors.New("classifier is closed")
	}

	encoded := make([]encodedText, len(texts))
	for i, t := range texts {
		ids, types, err := o.enc.encode(t)
		if err != nil {
			return nil, fmt.Errorf("tokenize row %d: %w", i, err)
		}
		encoded[i] = truncateEncoding(encodedText{ids: ids, typeIDs: types}, o.cfg.MaxSeqLen)
	}
	batch := buildBatch(encoded, o.padID)

	shape := ort.NewShape(int64(len(texts)), int64(batch.seqLen))
	var inputs []ort.Value
	defer func() {
		for _, in := range inputs {
			_ = in.Destroy()
		}
	}()
	for _, name := range o.cfg.InputNames {
		var data []int64
		switch name {
		case "input_ids":
			data = batch.ids
		case "attention_mask":
			data = batch.mask
		case "token_type_ids":
			data = batch.typeIDs
		default:
			return nil, fmt.Errorf("unsupported model input %q", name)
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("input tensor %s: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(len(texts)), NumLabels))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer output.Destroy()

	if err := o.session.Run(inputs, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("forward pass: %w", err)
	}
	return predictionsFromLogits(output.GetData(), len(texts))
}

type encodedText struct {
	ids     []int
	typeIDs []int
}

// truncateEncoding caps a sequence at maxLen while keeping its final special token.
func truncateEncoding(e encodedText, maxLen int) encodedText {
	if maxLen <= 0 || len(e.ids) <= maxLen {
		return e
	}
	ids := make([]int, maxLen)
	copy(ids, e.ids[:maxLen-1])
	ids[maxLen-1] = e.ids[len(e.ids)-1]
	out := encodedText{ids: ids}
	if len(e.typeIDs) > 0 {
		types := make([]int, maxLen)
		copy(types, e.typeIDs[:maxLen-1])
		types[maxLen-1] = e.typeIDs[len(e.typeIDs)-1]
		out.typeIDs = types
	}
	return out
}

type tensorBatch struct {
	ids     []int64
	mask    []int64
	typeIDs []int64
	seqLen  int
}

// buildBatch right-pads every row to the longest sequence in the batch.
func buildBatch(rows []encodedText, padID int) tensorBatch {
	seqLen := 1
	for _, r := range rows {
		if len(r.ids) > seqLen {
			seqLen = len(r.ids)
		}
	}
	b := tensorBatch{
		ids:     make([]int64, len(rows)*seqLen),
		mask:    make([]int64, len(rows)*seqLen),
		typeIDs: make([]int64, len(rows)*seqLen),
		seqLen:  seqLen,
	}
	for i, r := range rows {
		off := i * seqLen
		for j := 0; j < seqLen; j++ {
			if j < len(r.ids) {
				b.ids[off+j] = int64(r.ids[j])
				b.mask[off+j] = 1
				if j < len(r.typeIDs) {
					b.typeIDs[off+j] = int64(r.typeIDs[j])
				}
				continue
			}
			b.ids[off+j] = int64(padID)
		}
	}
	return b
}
