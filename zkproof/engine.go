package zkproof

import (
	"encoding/binary"
	"errors"
	"math"
	"math/cmplx"
	"math/rand"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/quids/quids/crypto"
)

// Default thresholds (§4.4).
const (
	DefaultMeasurementTolerance = 0.10
	DefaultFidelityThreshold    = 0.9
	DefaultConfidenceThreshold  = 0.95

	// defaultNoiseProbability simulates the measurement imperfection a
	// real quantum backend would exhibit, giving property 5
	// (verify(generate(s),s)==VALID with probability >= (1-tolerance)^k)
	// its probabilistic shape even though §9's Open Question notes this
	// engine never talks to real quantum hardware.
	defaultNoiseProbability = DefaultMeasurementTolerance / 2

	defaultCacheBytes = 8 << 20 // 8MiB
)

var (
	ErrEmptyState        = errors.New("zkproof: quantum state has zero dimension")
	ErrEmptyProof        = errors.New("zkproof: proof has no measurements")
	ErrDimensionMismatch = errors.New("zkproof: claimed state dimension does not match proof")
)

// Config holds the engine's tunable verification thresholds.
type Config struct {
	MeasurementTolerance float64
	FidelityThreshold    float64
	ConfidenceThreshold  float64
	NoiseProbability     float64
}

// DefaultConfig returns the spec's default thresholds (§4.4).
func DefaultConfig() Config {
	return Config{
		MeasurementTolerance: DefaultMeasurementTolerance,
		FidelityThreshold:    DefaultFidelityThreshold,
		ConfidenceThreshold:  DefaultConfidenceThreshold,
		NoiseProbability:     defaultNoiseProbability,
	}
}

// OptimalParameters is the best-observed (phase angles, qubit count)
// pair, tracked by joint verification-time/success-rate score (§4.4).
type OptimalParameters struct {
	PhaseAngles []float64
	QubitCount  int
	Score       float64
}

// Engine generates and verifies ZKProofs over QuantumState commitments.
// Safe for concurrent use.
type Engine struct {
	config Config
	rng    *rand.Rand

	mu      sync.Mutex
	optimal *OptimalParameters
	cache   *fastcache.Cache
}

// New creates an Engine with the given config and an optional seeded
// PRNG (per Design Notes §9: inject the PRNG as a typed handle so tests
// can seed it deterministically). A nil rng uses a new source with the
// fixed seed 1.
func New(config Config, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Engine{
		config: config,
		rng:    rng,
		cache:  fastcache.New(defaultCacheBytes),
	}
}

// measurementCount returns the default number of measurement qubits for
// a commitment of the given dimension: min(dimension, ceil(log2(dimension))),
// at least 1 (§4.4: "size parameterized, default <= log2(dimension)").
func measurementCount(dimension int) int {
	if dimension <= 1 {
		return 1
	}
	k := int(math.Ceil(math.Log2(float64(dimension))))
	if k < 1 {
		k = 1
	}
	if k > dimension {
		k = dimension
	}
	return k
}

func deterministicBit(amp complex128) bool {
	// Collapses a phase-transformed amplitude to a single simulated bit:
	// "heads" when the real component dominates the imaginary one.
	return real(amp) >= imag(amp)
}

func applyPhase(amp complex128, theta float64) complex128 {
	return amp * cmplx.Exp(complex(0, theta))
}

// Generate produces a ZKProof attesting knowledge of state (§4.4):
// chooses a random set of measurement indices, samples random phase
// angles, applies the phase transform, and records (possibly
// noise-flipped) expected measurement outcomes.
func (e *Engine) Generate(state QuantumState) (*ZKProof, error) {
	dim := len(state)
	if dim == 0 {
		return nil, ErrEmptyState
	}

	k := measurementCount(dim)
	indices := e.distinctIndices(dim, k)
	angles := make([]float64, k)
	outcomes := make([]bool, k)

	for j, idx := range indices {
		theta := e.rng.Float64() * 2 * math.Pi
		angles[j] = theta
		transformed := applyPhase(state[idx], theta)
		outcome := deterministicBit(transformed)
		if e.rng.Float64() < e.config.NoiseProbability {
			outcome = !outcome
		}
		outcomes[j] = outcome
	}

	proof := &ZKProof{
		MeasurementQubits:   indices,
		MeasurementOutcomes: outcomes,
		PhaseAngles:         angles,
	}
	proof.ProofData = crypto.SHA256(encodeProofBinding(proof))
	return proof, nil
}

func (e *Engine) distinctIndices(dim, k int) []int {
	seen := make(map[int]bool, k)
	indices := make([]int, 0, k)
	for len(indices) < k {
		idx := e.rng.Intn(dim)
		if seen[idx] {
			continue
		}
		seen[idx] = true
		indices = append(indices, idx)
	}
	return indices
}

// Verify checks proof against claimedState (§4.4): reapplies the phase
// transform, recomputes each measurement outcome, and accepts iff the
// matched fraction, fidelity, and confidence all clear their thresholds.
func (e *Engine) Verify(proof *ZKProof, claimedState QuantumState) (VerifyResult, error) {
	if proof == nil || len(proof.MeasurementQubits) == 0 {
		return VerifyResult{}, ErrEmptyProof
	}

	cacheKey := e.cacheKey(proof, claimedState)
	if cached, ok := e.lookupCache(cacheKey); ok {
		return cached, nil
	}

	total := len(proof.MeasurementQubits)
	matched := 0
	var certaintySum float64

	for j, idx := range proof.MeasurementQubits {
		if idx < 0 || idx >= len(claimedState) {
			return VerifyResult{}, ErrDimensionMismatch
		}
		transformed := applyPhase(claimedState[idx], proof.PhaseAngles[j])
		predicted := deterministicBit(transformed)
		if predicted == proof.MeasurementOutcomes[j] {
			matched++
		}
		prob := cmplx.Abs(transformed) * cmplx.Abs(transformed)
		certaintySum += 2 * math.Abs(prob-0.5)
	}

	fraction := float64(matched) / float64(total)
	fidelity := certaintySum / float64(total)
	confidence := hoeffdingConfidence(fraction, 1-e.config.MeasurementTolerance, total)

	result := VerifyResult{
		Confidence:          confidence,
		Fidelity:            fidelity,
		MatchedMeasurements: matched,
		TotalMeasurements:   total,
	}

	switch {
	case fraction >= 1-e.config.MeasurementTolerance &&
		fidelity >= e.config.FidelityThreshold &&
		confidence >= e.config.ConfidenceThreshold:
		result.Verdict = VALID
	case fraction >= (1-e.config.MeasurementTolerance)*0.8:
		result.Verdict = INCONCLUSIVE
	default:
		result.Verdict = INVALID
	}

	e.storeCache(cacheKey, result)
	return result, nil
}

// hoeffdingConfidence returns a Hoeffding-bound-style estimate of
// confidence that the true success rate is at least threshold, given an
// observed fraction over n samples.
func hoeffdingConfidence(fraction, threshold float64, n int) float64 {
	margin := fraction - threshold
	if margin <= 0 {
		return 1 - math.Exp(-2*float64(n)*margin*margin)
	}
	return 1 - 0.5*math.Exp(-2*float64(n)*margin*margin)
}

// UpdateOptimalParameters replaces the engine's remembered best
// (phase-angle vector, qubit count) iff candidate's score dominates the
// currently stored one (§4.4).
func (e *Engine) UpdateOptimalParameters(candidate OptimalParameters) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.optimal == nil || candidate.Score > e.optimal.Score {
		cp := candidate
		cp.PhaseAngles = append([]float64(nil), candidate.PhaseAngles...)
		e.optimal = &cp
		return true
	}
	return false
}

// OptimalParametersSnapshot returns a copy of the currently remembered best
// parameters, or nil if none have been recorded.
func (e *Engine) OptimalParametersSnapshot() *OptimalParameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.optimal == nil {
		return nil
	}
	cp := *e.optimal
	cp.PhaseAngles = append([]float64(nil), e.optimal.PhaseAngles...)
	return &cp
}

func encodeProofBinding(proof *ZKProof) []byte {
	buf := make([]byte, 0, len(proof.MeasurementQubits)*16+8)
	for j, idx := range proof.MeasurementQubits {
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(idx))
		buf = append(buf, tmp[:]...)
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(proof.PhaseAngles[j]))
		buf = append(buf, tmp[:]...)
		if proof.MeasurementOutcomes[j] {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

func (e *Engine) cacheKey(proof *ZKProof, state QuantumState) []byte {
	buf := append([]byte{}, proof.ProofData...)
	for _, amp := range state {
		var tmp [16]byte
		binary.BigEndian.PutUint64(tmp[:8], math.Float64bits(real(amp)))
		binary.BigEndian.PutUint64(tmp[8:], math.Float64bits(imag(amp)))
		buf = append(buf, tmp[:]...)
	}
	return crypto.SHA256(buf)
}

func (e *Engine) lookupCache(key []byte) (VerifyResult, bool) {
	val, ok := e.cache.HasGet(nil, key)
	if !ok || len(val) < 25 {
		return VerifyResult{}, false
	}
	return decodeVerifyResult(val), true
}

func (e *Engine) storeCache(key []byte, result VerifyResult) {
	e.cache.Set(key, encodeVerifyResult(result))
}

func encodeVerifyResult(r VerifyResult) []byte {
	buf := make([]byte, 25)
	buf[0] = byte(r.Verdict)
	binary.BigEndian.PutUint64(buf[1:9], math.Float64bits(r.Confidence))
	binary.BigEndian.PutUint64(buf[9:17], math.Float64bits(r.Fidelity))
	binary.BigEndian.PutUint32(buf[17:21], uint32(r.MatchedMeasurements))
	binary.BigEndian.PutUint32(buf[21:25], uint32(r.TotalMeasurements))
	return buf
}

func decodeVerifyResult(buf []byte) VerifyResult {
	return VerifyResult{
		Verdict:             Verdict(buf[0]),
		Confidence:          math.Float64frombits(binary.BigEndian.Uint64(buf[1:9])),
		Fidelity:            math.Float64frombits(binary.BigEndian.Uint64(buf[9:17])),
		MatchedMeasurements: int(binary.BigEndian.Uint32(buf[17:21])),
		TotalMeasurements:   int(binary.BigEndian.Uint32(buf[21:25])),
	}
}
