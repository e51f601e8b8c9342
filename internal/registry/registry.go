package registry

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ChainCast/internal/agent"
	"ChainCast/internal/domain/models"
	"ChainCast/internal/predictor"
	applogger "ChainCast/pkg/logger"
)

var (
	// ErrVersionNotFound means no registry record exists for the id.
	ErrVersionNotFound = errors.New("registry: version not found")
	// ErrTestNotFound means no A/B test exists for the id.
	ErrTestNotFound = errors.New("registry: ab test not found")
	// ErrTestInactive means the test exists but no longer routes traffic.
	ErrTestInactive = errors.New("registry: ab test inactive")
	// ErrBadSplit means the traffic split is outside 0-100.
	ErrBadSplit = errors.New("registry: traffic split out of range")
)

// Registry tracks trained model versions, their artifacts, and A/B tests
// between versions. Version metadata lives in memory; artifacts live in the
// ArtifactStore so a version survives process restarts.
type Registry struct {
	mu        sync.RWMutex
	versions  map[string]models.ModelVersion
	tests     map[string]models.ABTest
	artifacts *ArtifactStore
	pred      *predictor.Predictor
	ag        *agent.Agent
	l         *applogger.Logger
	clock     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock injects a clock.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.clock = now }
}

// New creates a Registry bound to the live model instances.
func New(artifacts *ArtifactStore, pred *predictor.Predictor, ag *agent.Agent, l *applogger.Logger, opts ...Option) *Registry {
	r := &Registry{
		versions:  make(map[string]models.ModelVersion),
		tests:     make(map[string]models.ABTest),
		artifacts: artifacts,
		pred:      pred,
		ag:        ag,
		l:         l,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores a new model version with its serialized artifact.
func (r *Registry) Register(mt models.ModelType, perf models.Performance, artifact []byte) (models.ModelVersion, error) {
	switch mt {
	case models.ModelSequenceRegressor, models.ModelPolicyAgent:
	default:
		return models.ModelVersion{}, fmt.Errorf("registry: unknown model type %q", mt)
	}

	v := models.ModelVersion{
		ID:          uuid.NewString(),
		Type:        mt,
		TrainedAt:   r.clock(),
		Performance: perf,
		Status:      models.StatusTesting,
	}
	if err := r.artifacts.Save(v.ID, artifact); err != nil {
		return models.ModelVersion{}, err
	}

	r.mu.Lock()
	r.versions[v.ID] = v
	r.mu.Unlock()

	if r.l != nil {
		r.l.Info("model version registered",
			applogger.String("version", v.ID),
			applogger.String("type", string(mt)))
	}
	return v, nil
}

// RegisterTrained snapshots both live models as new versions. The training
// paths call this after a successful train; evaluation metrics arrive later
// through UpdateMetrics.
func (r *Registry) RegisterTrained() ([]models.ModelVersion, error) {
	pb, err := r.pred.Export()
	if err != nil {
		return nil, fmt.Errorf("export predictor: %w", err)
	}
	ab, err := r.ag.ExportPolicy()
	if err != nil {
		return nil, fmt.Errorf("export policy: %w", err)
	}

	pv, err := r.Register(models.ModelSequenceRegressor, models.Performance{}, pb)
	if err != nil {
		return nil, err
	}
	av, err := r.Register(models.ModelPolicyAgent, models.Performance{}, ab)
	if err != nil {
		return nil, err
	}
	return []models.ModelVersion{pv, av}, nil
}

// UpdateMetrics overwrites the performance record of a version.
func (r *Registry) UpdateMetrics(versionID string, perf models.Performance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[versionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}
	v.Performance = perf
	r.versions[versionID] = v
	return nil
}

// ListVersions returns all versions, newest first.
func (r *Registry) ListVersions() []models.ModelVersion {
	r.mu.RLock()
	out := make([]models.ModelVersion, 0, len(r.versions))
	for _, v := range r.versions {
		out = append(out, v)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].TrainedAt.Equal(out[j].TrainedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].TrainedAt.After(out[j].TrainedAt)
	})
	return out
}

// GetVersion looks one version up.
func (r *Registry) GetVersion(versionID string) (models.ModelVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.versions[versionID]
	return v, ok
}

// LoadVersionedModel loads a version's artifact into the matching live
// model. A missing version, missing artifact, or corrupt artifact is logged
// and reported as false; it never brings serving down.
func (r *Registry) LoadVersionedModel(versionID string) bool {
	r.mu.RLock()
	v, ok := r.versions[versionID]
	r.mu.RUnlock()
	if !ok {
		r.warn("load skipped, version unknown", versionID, nil)
		return false
	}

	b, found, err := r.artifacts.Load(versionID)
	if err != nil || !found {
		r.warn("load skipped, artifact unavailable", versionID, err)
		return false
	}

	switch v.Type {
	case models.ModelSequenceRegressor:
		err = r.pred.Import(b)
	case models.ModelPolicyAgent:
		err = r.ag.ImportPolicy(b)
	default:
		err = fmt.Errorf("unknown model type %q", v.Type)
	}
	if err != nil {
		r.warn("load skipped, artifact rejected", versionID, err)
		return false
	}

	r.mu.Lock()
	v.Status = models.StatusActive
	v.DeployedAt = r.clock()
	r.versions[versionID] = v
	r.mu.Unlock()

	if r.l != nil {
		r.l.Info("model version deployed",
			applogger.String("version", versionID),
			applogger.String("type", string(v.Type)))
	}
	return true
}

// CreateABTest registers an active traffic-split test between two versions.
func (r *Registry) CreateABTest(modelA, modelB string, trafficSplit int) (models.ABTest, error) {
	if trafficSplit < 0 || trafficSplit > 100 {
		return models.ABTest{}, fmt.Errorf("%w: %d", ErrBadSplit, trafficSplit)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range []string{modelA, modelB} {
		if _, ok := r.versions[id]; !ok {
			return models.ABTest{}, fmt.Errorf("%w: %s", ErrVersionNotFound, id)
		}
	}
	t := models.ABTest{
		ID:           uuid.NewString(),
		ModelA:       modelA,
		ModelB:       modelB,
		TrafficSplit: trafficSplit,
		Status:       models.ABTestActive,
	}
	r.tests[t.ID] = t
	return t, nil
}

// StopABTest deactivates a test. Assignments against it fail afterwards.
func (r *Registry) StopABTest(testID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tests[testID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTestNotFound, testID)
	}
	t.Status = models.ABTestInactive
	r.tests[testID] = t
	return nil
}

// ListABTests returns all registered tests.
func (r *Registry) ListABTests() []models.ABTest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ABTest, 0, len(r.tests))
	for _, t := range r.tests {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ModelForUser deterministically assigns a user to one side of an active
// test: FNV-1a of the user id, mod 100, below the split routes to model B.
func (r *Registry) ModelForUser(testID, userID string) (string, error) {
	r.mu.RLock()
	t, ok := r.tests[testID]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTestNotFound, testID)
	}
	if t.Status != models.ABTestActive {
		return "", fmt.Errorf("%w: %s", ErrTestInactive, testID)
	}
	if bucketOf(userID) < t.TrafficSplit {
		return t.ModelB, nil
	}
	return t.ModelA, nil
}

func bucketOf(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % 100)
}

func (r *Registry) warn(msg, versionID string, err error) {
	if r.l == nil {
		return
	}
	fields := []applogger.Field{applogger.String("version", versionID)}
	if err != nil {
		fields = append(fields, applogger.Error(err))
	}
	r.l.Warn(msg, fields...)
}
