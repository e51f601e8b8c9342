package predictor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"ChainCast/internal/domain/models"
	"ChainCast/internal/preprocess"
)

// WindowSize is the fixed input window length of the sequence regressor.
const WindowSize = 60

var (
	// ErrInsufficientData is returned when fewer trailing feature points
	// than the model window are supplied.
	ErrInsufficientData = errors.New("predictor: insufficient trailing data")
	// ErrNotReady is returned before the model has been trained or loaded.
	ErrNotReady = errors.New("predictor: model not trained")
)

// Option configures a Predictor.
type Option func(*Predictor)

// Predictor is a sequence regressor over a fixed window of feature vectors.
// Features are robust-scaled (median / MAD) so price spikes in the training
// set do not dominate the fit.
type Predictor struct {
	mu sync.RWMutex

	weights []float64 // one weight per aggregated input
	bias    float64
	center  []float64 // per-feature median
	scale   []float64 // per-feature MAD * 1.4826
	trained bool

	epochs      int
	quickEpochs int
	lr          float64
	rng         *rand.Rand
}

// New creates an untrained Predictor.
func New(opts ...Option) *Predictor {
	p := &Predictor{
		epochs:      30,
		quickEpochs: 5,
		lr:          0.01,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithEpochs sets full and quick-mode epoch counts.
func WithEpochs(full, quick int) Option {
	return func(p *Predictor) {
		if full > 0 {
			p.epochs = full
		}
		if quick > 0 {
			p.quickEpochs = quick
		}
	}
}

// WithSeed makes training deterministic for tests.
func WithSeed(seed int64) Option {
	return func(p *Predictor) { p.rng = rand.New(rand.NewSource(seed)) }
}

// IsReady reports whether the model can serve predictions.
func (p *Predictor) IsReady() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.trained
}

// inputDim: window-mean of each feature plus the last point's features.
const inputDim = 2 * models.FeatureDim

// Train fits the regressor on the feature series. Quick mode runs fewer
// epochs for low-latency incremental updates from streaming data.
func (p *Predictor) Train(features []models.FeatureVector, quickMode bool) error {
	if len(features) < WindowSize+1 {
		return fmt.Errorf("%w: need %d points, got %d", ErrInsufficientData, WindowSize+1, len(features))
	}

	center, scale := robustScaler(features)

	xs, ys := buildSamples(features, center, scale)
	if len(xs) == 0 {
		return fmt.Errorf("%w: no training samples", ErrInsufficientData)
	}

	// held-out validation split
	split := len(xs) * 4 / 5
	if split == len(xs) {
		split = len(xs) - 1
	}
	if split < 1 {
		split = 1
	}
	trainX, trainY := xs[:split], ys[:split]
	valX, valY := xs[split:], ys[split:]

	epochs := p.epochs
	if quickMode {
		epochs = p.quickEpochs
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	weights := make([]float64, inputDim)
	if p.trained && len(p.weights) == inputDim {
		copy(weights, p.weights) // incremental: continue from current fit
	}
	bias := p.bias

	for e := 0; e < epochs; e++ {
		order := p.rng.Perm(len(trainX))
		for _, i := range order {
			pred := dot(weights, trainX[i]) + bias
			err := pred - trainY[i]
			for j := range weights {
				weights[j] -= p.lr * err * trainX[i][j]
			}
			bias -= p.lr * err
		}
		trainLoss := mse(weights, bias, trainX, trainY)
		valLoss := mse(weights, bias, valX, valY)
		// stop before the model overfits the training window
		if len(valX) > 0 && valLoss > 1.5*trainLoss && e > 0 {
			break
		}
	}

	p.weights = weights
	p.bias = bias
	p.center = center
	p.scale = scale
	p.trained = true
	return nil
}

// Predict forecasts the next price from the trailing window. It requires at
// least WindowSize feature points and a trained model.
func (p *Predictor) Predict(recent []models.FeatureVector) (models.Forecast, error) {
	if len(recent) < WindowSize {
		return models.Forecast{}, fmt.Errorf("%w: need %d points, got %d", ErrInsufficientData, WindowSize, len(recent))
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.trained {
		return models.Forecast{}, ErrNotReady
	}

	window := recent[len(recent)-WindowSize:]
	x := buildInput(window, p.center, p.scale)
	scaled := dot(p.weights, x) + p.bias
	price := scaled*p.scale[0] + p.center[0]
	if price <= 0 {
		// regressor drifted below zero on degenerate input; pin to last known
		price = window[len(window)-1].Price
	}

	last := window[len(window)-1].Price
	dir := models.DirectionUp
	if price < last {
		dir = models.DirectionDown
	}

	return models.Forecast{
		Price:      price,
		Confidence: confidenceScore(window),
		Direction:  dir,
		Timestamp:  time.Now(),
	}, nil
}

// Export serializes the fitted model to a reloadable artifact.
func (p *Predictor) Export() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.trained {
		return nil, ErrNotReady
	}
	return json.Marshal(artifact{
		Weights: p.weights,
		Bias:    p.bias,
		Center:  p.center,
		Scale:   p.scale,
	})
}

// Import restores a model artifact without retraining.
func (p *Predictor) Import(b []byte) error {
	var a artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return fmt.Errorf("predictor artifact: %w", err)
	}
	if len(a.Weights) != inputDim || len(a.Center) != models.FeatureDim || len(a.Scale) != models.FeatureDim {
		return fmt.Errorf("predictor artifact: unexpected shape")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.weights = a.Weights
	p.bias = a.Bias
	p.center = a.Center
	p.scale = a.Scale
	p.trained = true
	return nil
}

type artifact struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Center  []float64 `json:"center"`
	Scale   []float64 `json:"scale"`
}

// robustScaler computes per-feature median and MAD*1.4826 across the set.
// The 1.4826 factor makes MAD consistent with stddev under normality.
func robustScaler(features []models.FeatureVector) (center, scale []float64) {
	center = make([]float64, models.FeatureDim)
	scale = make([]float64, models.FeatureDim)
	col := make([]float64, len(features))
	for j := 0; j < models.FeatureDim; j++ {
		for i, f := range features {
			col[i] = f.Values()[j]
		}
		med := preprocess.Median(col)
		mad := preprocess.MedianAbsDev(col, med)
		center[j] = med
		scale[j] = mad * 1.4826
		if scale[j] < 1e-9 {
			scale[j] = 1 // constant feature: avoid division blowup
		}
	}
	return center, scale
}

func scaleVec(f models.FeatureVector, center, scale []float64) []float64 {
	vals := f.Values()
	out := make([]float64, len(vals))
	for j, v := range vals {
		out[j] = (v - center[j]) / scale[j]
	}
	return out
}

// buildInput aggregates a window into the model input: the scaled window
// mean of each feature followed by the scaled last point.
func buildInput(window []models.FeatureVector, center, scale []float64) []float64 {
	x := make([]float64, inputDim)
	for _, f := range window {
		sv := scaleVec(f, center, scale)
		for j, v := range sv {
			x[j] += v
		}
	}
	for j := 0; j < models.FeatureDim; j++ {
		x[j] /= float64(len(window))
	}
	last := scaleVec(window[len(window)-1], center, scale)
	copy(x[models.FeatureDim:], last)
	return x
}

func buildSamples(features []models.FeatureVector, center, scale []float64) (xs [][]float64, ys []float64) {
	for i := WindowSize; i < len(features); i++ {
		window := features[i-WindowSize : i]
		xs = append(xs, buildInput(window, center, scale))
		ys = append(ys, (features[i].Price-center[0])/scale[0])
	}
	return xs, ys
}

func dot(w, x []float64) float64 {
	s := 0.0
	for i := range w {
		s += w[i] * x[i]
	}
	return s
}

func mse(w []float64, b float64, xs [][]float64, ys []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for i := range xs {
		d := dot(w, xs[i]) + b - ys[i]
		s += d * d
	}
	return s / float64(len(xs))
}
