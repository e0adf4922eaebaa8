// Package reid resolves a track's accumulated embedding against the
// cross-job biometric cache and decides whether it is a known animal or a
// new one. Ported from the reference ReIDEngine: per-track pending
// accumulation, mean aggregation, cosine-similarity best match, tiered
// STRONG/WEAK/NEW decision, and EMA drift compensation on the matched
// identity's stored embedding.
package reid

import (
	"math"
	"sort"
	"sync"
	"time"
)

type Decision string

const (
	DecisionStrongMatch Decision = "StrongMatch"
	DecisionWeakMatch   Decision = "WeakMatch"
	DecisionNew         Decision = "New"
	// DecisionPending means MinPendingObserved hasn't been reached yet: no
	// match decision has been attempted, and callers must not treat this as
	// a New identity (it carries no side effects).
	DecisionPending Decision = "Pending"
)

// Config holds the tiered thresholds and drift rates from spec §4.4. There
// is no separate new-identity threshold: every best similarity below
// WeakThreshold resolves to New — the conservative policy choice recorded in SPEC_FULL.md's Open
// Question decisions, preserving the original engine's effective
// fallthrough-to-NEW behavior for anything below WeakThreshold.
type Config struct {
	StrongThreshold    float64
	WeakThreshold      float64
	EMAAlphaStrong     float64
	EMAAlphaWeak       float64
	MinPendingObserved int
	// HotCacheSize bounds the recency index used by IsHot; it does not limit
	// how many identities Engine itself can hold.
	HotCacheSize int
}

func DefaultConfig() Config {
	return Config{
		StrongThreshold:    0.85,
		WeakThreshold:      0.70,
		EMAAlphaStrong:     0.10,
		EMAAlphaWeak:       0.05,
		MinPendingObserved: 1,
		HotCacheSize:       4096,
	}
}

// Identity is one cached biometric record, mirroring data.BiometricRecord
// without importing the persistence package.
type Identity struct {
	AnimalID     int64
	Embedding    []float32
	LastUpdated  time.Time
	ModelVersion string
}

// Result is the outcome of resolving one track's accumulated observations.
type Result struct {
	AnimalID   int64 // valid only for DecisionStrongMatch and DecisionWeakMatch
	Similarity float64
	Decision   Decision
}

// Engine holds the in-memory identity cache and per-track pending
// accumulators. All mutating methods are safe for concurrent use; callers
// processing multiple tracks concurrently should still serialize writes to
// the same AnimalID via an external lock (see Locker) so a drift update
// from one video doesn't race another's.
type Engine struct {
	cfg Config
	mu  sync.RWMutex

	identities map[int64]*Identity
	pending    map[int]*pendingTrack
	hot        *HotCache

	modelVersion string
}

type pendingTrack struct {
	sum   []float32
	count int
}

func New(cfg Config, seed []*Identity, modelVersion string) *Engine {
	if cfg.StrongThreshold == 0 && cfg.WeakThreshold == 0 {
		cfg = DefaultConfig()
	}
	e := &Engine{
		cfg:          cfg,
		identities:   make(map[int64]*Identity, len(seed)),
		pending:      make(map[int]*pendingTrack),
		hot:          NewHotCache(cfg.HotCacheSize),
		modelVersion: modelVersion,
	}
	for _, id := range seed {
		e.identities[id.AnimalID] = id
	}
	return e
}

// IsHot reports whether animalID has resolved a match or been registered
// recently, per the bounded recency index (see HotCache).
func (e *Engine) IsHot(animalID int64) bool {
	return e.hot.IsHot(animalID)
}

// Observe folds a new per-frame embedding into a track's pending
// accumulator and, once MinPendingObserved is reached, resolves the
// accumulated mean against the cache. Subsequent calls for the same track
// keep re-resolving with the growing mean, so callers can keep the latest
// Result without re-querying.
func (e *Engine) Observe(trackID int, embedding []float32) Result {
	e.mu.Lock()
	p, ok := e.pending[trackID]
	if !ok {
		p = &pendingTrack{sum: make([]float32, len(embedding))}
		e.pending[trackID] = p
	}
	for i, v := range embedding {
		if i >= len(p.sum) {
			break
		}
		p.sum[i] += v
	}
	p.count++
	count := p.count
	mean := meanVector(p.sum, count)
	e.mu.Unlock()

	if count < e.cfg.MinPendingObserved {
		return Result{Decision: DecisionPending, Similarity: 0}
	}

	return e.resolve(mean)
}

func meanVector(sum []float32, count int) []float32 {
	out := make([]float32, len(sum))
	for i, s := range sum {
		out[i] = s / float32(count)
	}
	return normalize(out)
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// resolve finds the best cosine match and applies the tiered decision.
// On Strong/Weak match it also performs the EMA drift update on the
// matched identity in-place, so the cache reflects the committed decision
// immediately (callers wanting persistence must still write the updated
// embedding through, e.g., biometric.Upsert).
func (e *Engine) resolve(embedding []float32) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	bestID, bestSim, found := e.findBestMatch(embedding)
	if !found || bestSim < e.cfg.WeakThreshold {
		return Result{Decision: DecisionNew, Similarity: bestSim}
	}

	id := e.identities[bestID]
	e.hot.Touch(bestID)
	if bestSim >= e.cfg.StrongThreshold {
		e.updateEmbedding(id, embedding, e.cfg.EMAAlphaStrong)
		return Result{AnimalID: bestID, Similarity: bestSim, Decision: DecisionStrongMatch}
	}

	e.updateEmbedding(id, embedding, e.cfg.EMAAlphaWeak)
	return Result{AnimalID: bestID, Similarity: bestSim, Decision: DecisionWeakMatch}
}

// findBestMatch returns the identity with highest cosine similarity. Ties
// within 0.001 are broken in favor of the more recently updated identity,
// so a stale cache entry never wins a coin-flip against a fresher one.
func (e *Engine) findBestMatch(embedding []float32) (int64, float64, bool) {
	if len(e.identities) == 0 {
		return 0, 0, false
	}

	type cand struct {
		id  int64
		sim float64
		ts  time.Time
	}
	var candidates []cand
	for id, identity := range e.identities {
		sim := cosineSimilarity(embedding, identity.Embedding)
		candidates = append(candidates, cand{id, sim, identity.LastUpdated})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if math.Abs(candidates[i].sim-candidates[j].sim) <= 0.001 {
			return candidates[i].ts.After(candidates[j].ts)
		}
		return candidates[i].sim > candidates[j].sim
	})

	best := candidates[0]
	return best.id, best.sim, true
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (e *Engine) updateEmbedding(id *Identity, observed []float32, alpha float64) {
	out := make([]float32, len(id.Embedding))
	for i := range out {
		var o float32
		if i < len(observed) {
			o = observed[i]
		}
		out[i] = float32((1-alpha)*float64(id.Embedding[i]) + alpha*float64(o))
	}
	id.Embedding = normalize(out)
	id.LastUpdated = time.Now().UTC()
}

// RegisterNew adds a freshly-created identity to the cache, e.g. right
// after the caller has inserted its Animal + BiometricRecord rows.
func (e *Engine) RegisterNew(id *Identity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.identities[id.AnimalID] = id
	e.hot.Touch(id.AnimalID)
}

// Get returns the current cached state of an identity, for persistence
// write-through after a match decision.
func (e *Engine) Get(animalID int64) (*Identity, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.identities[animalID]
	return id, ok
}

// ClearPending drops a track's accumulator once its resolution has been
// committed (e.g. when the tracker marks it Lost), matching clear_pending.
func (e *Engine) ClearPending(trackID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, trackID)
}

func (e *Engine) ModelVersion() string { return e.modelVersion }
