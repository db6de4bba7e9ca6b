// Package classifier runs the local CNN over preprocessed smear tensors.
// The model artifact is optional: without it every prediction comes from
// the simulated strategy, so the rest of the pipeline stays exercisable.
package classifier

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"malaria-scan/internal/diag"
	"malaria-scan/internal/preprocess"
)

type State string

const (
	StateUnloaded    State = "unloaded"
	StateLoading     State = "loading"
	StateReady       State = "ready"
	StateUnavailable State = "unavailable"
)

// Metadata is written next to the ONNX artifact by the training pipeline
// and declares the contract the artifact must satisfy.
type Metadata struct {
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	ImageSize   int     `json:"image_size"`
}

const (
	modelFile    = "model.onnx"
	metadataFile = "model_metadata.json"
)

var ortInit sync.Once

// Classifier owns the model lifecycle. The loaded session is read-only and
// shared by concurrent Predict calls; only the load transition is guarded.
type Classifier struct {
	dir string
	rng *lockedRand
	sim *Simulator

	mu      sync.Mutex
	state   State
	loading chan struct{} // closed when the in-flight load finishes
	loadErr error
	session *ort.DynamicAdvancedSession
	meta    Metadata
}

// New builds a classifier over the artifact directory. rng may be nil, in
// which case a time-seeded source is used; tests pass a fixed seed.
func New(dir string, rng *rand.Rand) *Classifier {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	lr := &lockedRand{r: rng}
	return &Classifier{
		dir:   dir,
		rng:   lr,
		sim:   &Simulator{Rand: lr, Sleep: time.Sleep},
		state: StateUnloaded,
	}
}

func (c *Classifier) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Load is idempotent. The first caller performs the load; callers arriving
// during an in-flight load wait for it instead of starting another. A failed
// load leaves the classifier Unavailable until Reload.
func (c *Classifier) Load() error {
	c.mu.Lock()
	switch c.state {
	case StateReady:
		c.mu.Unlock()
		return nil
	case StateUnavailable:
		err := c.loadErr
		c.mu.Unlock()
		return err
	case StateLoading:
		done := c.loading
		c.mu.Unlock()
		<-done
		c.mu.Lock()
		err := c.loadErr
		c.mu.Unlock()
		return err
	}

	done := make(chan struct{})
	c.state = StateLoading
	c.loading = done
	c.mu.Unlock()

	session, meta, err := c.open()

	c.mu.Lock()
	if err != nil {
		c.state = StateUnavailable
		c.loadErr = err
		log.Printf("classifier: model unavailable, predictions will be simulated: %v", err)
	} else {
		c.state = StateReady
		c.session = session
		c.meta = meta
		log.Printf("classifier: model ready (input %v)", meta.InputShape)
	}
	c.loading = nil
	close(done)
	c.mu.Unlock()
	return err
}

// Reload clears a previous failure and attempts the load again.
func (c *Classifier) Reload() error {
	c.mu.Lock()
	if c.state == StateLoading {
		done := c.loading
		c.mu.Unlock()
		<-done
		return c.Reload()
	}
	if c.state == StateUnavailable {
		c.state = StateUnloaded
		c.loadErr = nil
	}
	c.mu.Unlock()
	return c.Load()
}

func (c *Classifier) open() (*ort.DynamicAdvancedSession, Metadata, error) {
	modelPath := filepath.Join(c.dir, modelFile)
	metaPath := filepath.Join(c.dir, metadataFile)

	var meta Metadata
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, meta, &diag.ModelLoadError{Path: metaPath, Err: err}
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, meta, &diag.ModelLoadError{Path: metaPath, Err: err}
	}
	if err := checkContract(meta); err != nil {
		return nil, meta, &diag.ModelLoadError{Path: metaPath, Err: err}
	}

	ortInit.Do(func() {
		if err := ort.InitializeEnvironment(); err != nil {
			log.Printf("classifier: onnxruntime init: %v", err)
		}
	})

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"}, nil)
	if err != nil {
		return nil, meta, &diag.ModelLoadError{Path: modelPath, Err: err}
	}
	return session, meta, nil
}

// checkContract rejects artifacts that do not declare the 128×128×3 input
// with a single sigmoid output unit.
func checkContract(m Metadata) error {
	if m.ImageSize != preprocess.Size {
		return fmt.Errorf("artifact image_size %d, trained contract requires %d", m.ImageSize, preprocess.Size)
	}
	if len(m.InputShape) != 4 || m.InputShape[1] != preprocess.Size ||
		m.InputShape[2] != preprocess.Size || m.InputShape[3] != preprocess.Channels {
		return fmt.Errorf("artifact input shape %v, want [N %d %d %d]",
			m.InputShape, preprocess.Size, preprocess.Size, preprocess.Channels)
	}
	if len(m.OutputShape) != 2 || m.OutputShape[1] != 1 {
		return fmt.Errorf("artifact output shape %v, want [N 1]", m.OutputShape)
	}
	return nil
}

// Predict never fails: when the model is not Ready, or the forward pass
// faults, the simulated strategy answers instead.
func (c *Classifier) Predict(t *preprocess.Tensor) diag.ClassifierOutput {
	c.mu.Lock()
	ready := c.state == StateReady
	session := c.session
	c.mu.Unlock()

	if !ready {
		return c.sim.Predict()
	}

	start := time.Now()
	out, err := c.forward(session, t)
	if err != nil {
		log.Printf("classifier: inference failed, falling back to simulation: %v", err)
		return c.sim.Predict()
	}
	out.ProcessingTimeMs = time.Since(start).Milliseconds()
	return out
}

// forward runs one scoped pass: both tensors are destroyed before return on
// every path, so a mid-inference fault cannot leak native memory.
func (c *Classifier) forward(session *ort.DynamicAdvancedSession, t *preprocess.Tensor) (diag.ClassifierOutput, error) {
	want := preprocess.Size * preprocess.Size * preprocess.Channels
	if t == nil || len(t.Data) != want {
		got := 0
		if t != nil {
			got = len(t.Data)
		}
		return diag.ClassifierOutput{}, &diag.ShapeMismatchError{
			Want: fmt.Sprintf("%d values", want),
			Got:  fmt.Sprintf("%d values", got),
		}
	}

	input, err := ort.NewTensor(ort.NewShape(1, preprocess.Size, preprocess.Size, preprocess.Channels), t.Data)
	if err != nil {
		return diag.ClassifierOutput{}, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return diag.ClassifierOutput{}, fmt.Errorf("create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return diag.ClassifierOutput{}, fmt.Errorf("inference: %w", err)
	}

	p := float64(output.GetData()[0]) // single sigmoid unit
	return c.interpret(p), nil
}

// interpret maps the raw sigmoid to a full preliminary result. Confidence is
// reported in favor of the chosen class. Species and stage are not reliably
// determined by this model; they are drawn from a fixed candidate set and
// flagged with low confidence for the verifier to correct.
func (c *Classifier) interpret(p float64) diag.ClassifierOutput {
	isInfected := p > 0.5
	confidence := p
	if !isInfected {
		confidence = 1 - p
	}

	var parasitemia float64
	if isInfected {
		parasitemia = c.estimateParasitemia(p)
	}

	sp, st := pickCandidate(c.rng)
	return diag.ClassifierOutput{
		IsInfected:        isInfected,
		Confidence:        confidence,
		Species:           sp,
		SpeciesConfidence: 0.65,
		Stage:             st,
		StageConfidence:   0.60,
		Parasitemia:       parasitemia,
		Severity:          diag.SeverityFor(isInfected, parasitemia),
	}
}

// estimateParasitemia draws uniformly within a band picked by the raw
// sigmoid. Coarse placeholder policy: the verifier supplies the
// authoritative count.
func (c *Classifier) estimateParasitemia(p float64) float64 {
	switch {
	case p > 0.9:
		return c.rng.Float64()*2 + 3 // 3-5%
	case p > 0.7:
		return c.rng.Float64()*2 + 1 // 1-3%
	default:
		return c.rng.Float64()*1 + 0.2 // 0.2-1.2%
	}
}

// Close releases the session. Safe to call in any state.
func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
	c.state = StateUnloaded
}

// lockedRand makes one rand source safe for concurrent Predict calls.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}
