package photesthesis

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sort"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// pickUniform selects a uniformly random element. Callers never pass
// an empty slice; doing so is a programmer error and panics.
func pickUniform[T any](rng *rand.Rand, elts []T) T {
	if len(elts) == 0 {
		panic("pickUniform on empty slice")
	}
	return elts[rng.Intn(len(elts))]
}

// A Test binds a user-written body to a Grammar and a Corpus and
// drives the initialize/check/expand lifecycle. The body receives the
// Test itself and observes behavior through Param, Invariant, Trace,
// Check and Track; Administer decides which plans to run.
//
// A Test owns all its mutable state and must not be used reentrantly
// or concurrently.
type Test struct {
	gram      *Grammar
	corp      *Corpus
	name      TestName
	seedSpecs []ParamSpecs
	body      func(*Test)

	rng     *rand.Rand
	failed  bool
	verbose uint64
	logger  *zap.Logger

	userHasher     *xxhash.Digest
	userTrajectory Trajectory
	pathTrajectory Trajectory
	trajectory     Trajectory
	transcript     *Transcript

	// stabilityMask zeroes out edge counters observed to flap between
	// runs of the same plan; once masked, a counter stays masked for
	// the life of the Test.
	stabilityMask []byte

	// OnInvariantFailure and OnTranscriptMismatch may be replaced to
	// treat failures specially. The defaults log through the driver's
	// logger at verbosity >= 1 and are otherwise silent.
	OnInvariantFailure   func(plan *Plan, name VarName, expected, got Value)
	OnTranscriptMismatch func(expected, got *Transcript)
}

type trajectories map[Trajectory]*Transcript

// NewTest builds a driver for the named test. seedSpecs declares the
// parameter specifications used to seed generation; body is the test
// itself. The PRNG starts seeded with zero; see SeedWithValue and
// SeedFromRandomDevice.
func NewTest(gram *Grammar, corp *Corpus, name TestName, seedSpecs []ParamSpecs, body func(*Test)) *Test {
	cfg := FromEnv()
	verbose := orDefault(cfg.Verbose, 0)
	return &Test{
		gram:      gram,
		corp:      corp,
		name:      name,
		seedSpecs: seedSpecs,
		body:      body,
		rng:       rand.New(rand.NewSource(0)),
		verbose:   verbose,
		logger:    newLogger(verbose),
	}
}

// SeedWithValue seeds the PRNG used for random decisions. Fixed seed,
// fixed grammar and an identical corpus give an identical sequence of
// generated plans.
func (t *Test) SeedWithValue(seed uint64) {
	t.rng = rand.New(rand.NewSource(int64(seed)))
}

// SeedFromRandomDevice seeds the PRNG from the system entropy source.
func (t *Test) SeedFromRandomDevice() {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err == nil {
		t.SeedWithValue(binary.LittleEndian.Uint64(buf[:]))
	}
}

// ---- user operations, callable from the test body ----

// Param returns the running plan's value for the named parameter. An
// unknown parameter is a programmer error and panics with the
// unknown_param issue.
func (t *Test) Param(name ParamName) Value {
	v, err := t.transcript.Plan().Param(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Invariant records a value expected to be identical across all
// executions (so it is relevant to neither trajectories nor
// transcripts). A mismatch marks the run failed and invokes the
// invariant-failure handler.
func (t *Test) Invariant(name VarName, expected, got Value) {
	if !expected.Equal(got) {
		t.failed = true
		t.handleInvariantFailure(t.transcript.Plan(), name, expected, got)
	}
}

// Trace mixes a value into the run's user trajectory. Runs are
// grouped by trajectory, and expansion samples between trajectories
// to find new ones.
//
// Mnemonic: TRAced values contribute to TRAjectories.
func (t *Test) Trace(name VarName, seen Value) {
	addKeyValueToHash(t.userHasher, name, seen)
}

// Check appends the value to the transcript for comparison against
// previous runs, without tracing it.
//
// Mnemonic: checks can fail, and failures are reported.
func (t *Test) Check(name VarName, seen Value) {
	t.transcript.AddChecked(name, seen)
}

// Track traces and records the value. Equivalent to Trace plus Check,
// except the transcript says "track" to flag the trajectory
// sensitivity to readers.
//
// Mnemonic: TRACK = TRAce + cheCK.
func (t *Test) Track(name VarName, seen Value) {
	t.Trace(name, seen)
	t.transcript.AddTracked(name, seen)
}

// ---- trajectory bookkeeping ----

func (t *Test) initUserTrajectory() {
	t.userTrajectory = 0
	t.userHasher = newHasher()
}

func (t *Test) initPathTrajectory() {
	t.pathTrajectory = 0
	for i := range covCounters {
		covCounters[i] = 0
	}
}

func (t *Test) initTrajectory() {
	t.initPathTrajectory()
	t.initUserTrajectory()
}

func (t *Test) finiPathTrajectory() {
	if t.stabilityMask == nil {
		for i := range covCounters {
			covCounters[i] = counterClasses[covCounters[i]]
		}
	} else {
		for i := range covCounters {
			covCounters[i] = counterClasses[covCounters[i]] & t.stabilityMask[i]
		}
	}
	if len(covCounters) != 0 {
		h := newHasher()
		_, _ = h.Write(covCounters)
		t.pathTrajectory = h.Sum64()
	}
}

func (t *Test) finiUserTrajectory() {
	t.userTrajectory = t.userHasher.Sum64()
}

func (t *Test) finiTrajectory() {
	t.finiPathTrajectory()
	t.finiUserTrajectory()
	h := newHasher()
	addUint64ToHash(h, t.pathTrajectory)
	addUint64ToHash(h, t.userTrajectory)
	t.trajectory = h.Sum64()
}

// ---- plan execution ----

func (t *Test) runPlan(plan *Plan) {
	t.failed = false
	t.transcript = NewTranscript(plan)
	t.initTrajectory()
	t.body(t)
	t.finiTrajectory()
	t.logger.Debug("ran plan",
		zap.Uint64("plan", plan.Hash()),
		zap.Uint64("trajectory", t.trajectory))
}

// runPlanAndStabilize runs the plan twice and requires the trajectory
// to repeat. A flapping user trajectory is fatal; a flapping path
// trajectory triggers the mask-and-retry loop, masking counters that
// differ between consecutive runs until no new counter flaps, then
// verifying, for up to PHOTESTHESIS_STABILITY_RETRIES attempts.
func (t *Test) runPlanAndStabilize(plan *Plan) error {
	t.runPlan(plan)
	savedUser := t.userTrajectory
	savedPath := t.pathTrajectory
	t.runPlan(plan)
	if t.userTrajectory != savedUser {
		return newIssue(CodeUnstableTrajectory,
			"user-provided (trace/track) trajectory is unstable")
	}
	if t.pathTrajectory == savedPath {
		return nil
	}

	t.logger.Info("path trajectory is unstable, attempting to stabilize",
		zap.Uint64("plan", plan.Hash()))
	if len(covCounters) == 0 {
		return newIssue(CodeUnstableTrajectory,
			"path trajectory unstable without a coverage region")
	}
	if t.stabilityMask == nil {
		t.stabilityMask = make([]byte, len(covCounters))
		for i := range t.stabilityMask {
			t.stabilityMask[i] = 0xff
		}
	}
	retries := orDefault(FromEnv().StabilityRetries, 0)
	for attempt := uint64(0); attempt < retries; attempt++ {
		for {
			saved := append([]byte{}, covCounters...)
			t.runPlan(plan)
			nNewMasked, nMasked := 0, 0
			for i := range covCounters {
				if t.stabilityMask[i] != 0 {
					if saved[i] != covCounters[i] {
						nNewMasked++
						t.stabilityMask[i] = 0
					}
				} else {
					nMasked++
				}
			}
			t.logger.Info("masked flapping path-edges",
				zap.Int("newlyMasked", nNewMasked),
				zap.Int("totalMasked", nMasked),
				zap.Int("edges", len(covCounters)))
			if nNewMasked == 0 {
				break
			}
		}
		// Should have stabilized by here. Hopefully.
		savedPath = t.pathTrajectory
		t.runPlan(plan)
		if savedPath == t.pathTrajectory {
			return nil
		}
	}
	return newIssue(CodeUnstableTrajectory,
		"unable to stabilize path trajectory, try raising "+EnvStabilityRetries)
}

// runPlanAndMaybeExpandCorpus runs the plan and admits its transcript
// into the corpus when both its trajectory and its transcript are new.
func (t *Test) runPlanAndMaybeExpandCorpus(plan *Plan, trajs trajectories) (bool, error) {
	if err := t.runPlanAndStabilize(plan); err != nil {
		return false, err
	}
	if _, seen := trajs[t.trajectory]; !seen && !t.corp.Contains(t.transcript) {
		t.logger.Debug("novel trajectory found",
			zap.Uint64("plan", plan.Hash()),
			zap.Uint64("trajectory", t.trajectory))
		trajs[t.trajectory] = t.transcript
		if err := t.corp.Add(t.transcript); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// checkTranscript replays a stored transcript's plan and compares the
// live transcript to it. On mismatch the mismatch handler runs, the
// run counts as failed, and the stored transcript is replaced with the
// live one: the corpus self-heals when behavior changes
// intentionally.
func (t *Test) checkTranscript(stored *Transcript) error {
	if err := t.runPlanAndStabilize(stored.Plan()); err != nil {
		return err
	}
	if !stored.Equal(t.transcript) {
		t.failed = true
		t.handleTranscriptMismatch(stored, t.transcript)
		if err := t.corp.Update(t.transcript); err != nil {
			return err
		}
	}
	return nil
}

// ---- lifecycle phases ----

func (t *Test) initializeCorpusFromKPaths(kPathLength uint64) ([]PlanHash, error) {
	trajs := trajectories{}
	var failures []PlanHash
	t.logger.Info("generating initial k-paths",
		zap.String("test", t.name.String()),
		zap.Uint64("kPathLength", kPathLength))
	nPlans := 0
	for _, spec := range t.seedSpecs {
		for k := 2; k < int(kPathLength); k++ {
			plans, err := t.gram.PlansFromKPathCoverings(t.name, spec, k)
			if err != nil {
				return failures, err
			}
			t.logger.Info("running generated test-plans",
				zap.Int("plans", len(plans)),
				zap.Int("specParams", len(spec)))
			for _, plan := range plans {
				nPlans++
				if _, err := t.runPlanAndMaybeExpandCorpus(plan, trajs); err != nil {
					return failures, err
				}
				if t.failed {
					failures = append(failures, plan.Hash())
				}
			}
		}
	}
	t.logger.Info("generated initial plans",
		zap.Int("plans", nPlans),
		zap.Int("trajectories", len(trajs)),
		zap.String("test", t.name.String()))
	t.reportFailures(failures)
	return failures, nil
}

func (t *Test) checkCorpus(trajs trajectories, cfg Config) ([]PlanHash, error) {
	stored := t.corp.Transcripts(t.name)
	if len(stored) == 0 {
		return nil, nil
	}
	var failures []PlanHash
	t.logger.Info("checking stored transcripts",
		zap.Int("transcripts", len(stored)),
		zap.String("test", t.name.String()))
	// Snapshot: checkTranscript may replace entries while we iterate.
	snapshot := append([]*Transcript{}, stored...)
	for _, ts := range snapshot {
		if cfg.TestHash != nil && ts.Plan().Hash() != *cfg.TestHash {
			continue
		}
		if err := t.checkTranscript(ts); err != nil {
			return failures, err
		}
		if t.failed {
			failures = append(failures, ts.Plan().Hash())
		}
		trajs[t.trajectory] = t.transcript
	}
	t.logger.Info("checked stored transcripts",
		zap.Int("trajectories", len(trajs)),
		zap.Int("transcripts", len(snapshot)))
	t.reportFailures(failures)
	return failures, nil
}

func (t *Test) randomlyExpandCorpus(trajs trajectories, steps, depth uint64) ([]PlanHash, error) {
	if steps == 0 {
		return nil, nil
	}
	var failures []PlanHash
	newTrajs := 0
	t.logger.Info("expanding corpus", zap.String("test", t.name.String()))
	for i := uint64(0); i < steps; i++ {
		var spec ParamSpecs
		if len(trajs) == 0 {
			spec = pickUniform(t.rng, t.seedSpecs)
		} else {
			keys := make([]Trajectory, 0, len(trajs))
			for k := range trajs {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
			spec = trajs[pickUniform(t.rng, keys)].Plan().ParamSpecs()
		}
		plan, err := t.gram.RandomPlan(t.name, spec, t.rng, int(depth))
		if err != nil {
			return failures, err
		}
		grew, err := t.runPlanAndMaybeExpandCorpus(plan, trajs)
		if err != nil {
			return failures, err
		}
		if grew {
			newTrajs++
		}
		if t.failed {
			failures = append(failures, plan.Hash())
		}
	}
	t.logger.Info("explored random inputs",
		zap.Uint64("steps", steps),
		zap.Uint64("depth", depth),
		zap.Int("newTrajectories", newTrajs),
		zap.Int("corpusSize", len(t.corp.Transcripts(t.name))))
	t.reportFailures(failures)
	return failures, nil
}

func (t *Test) reportFailures(failures []PlanHash) {
	if len(failures) != 0 {
		t.logger.Info("failing test hashes", zap.Uint64s("hashes", failures))
	}
}

// Administer checks and/or grows the corpus: the entry point clients
// call once per process run.
//
// When the corpus holds no transcripts for this test, it is seeded
// from k-path coverings of every seed spec. Otherwise every stored
// transcript is replayed (optionally narrowed to one plan via
// PHOTESTHESIS_TEST_HASH); if all checks pass and expansionSteps is
// nonzero the corpus is randomly expanded toward unseen trajectories.
//
// The PHOTESTHESIS_* environment overrides the arguments. The returned
// slice holds the plan hashes of every failed run, in iteration order;
// assert it is empty to surface failures in an outer test harness.
func (t *Test) Administer(expansionSteps, kPathLength, randomDepth uint64) ([]PlanHash, error) {
	cfg := FromEnv()
	expansionSteps = orDefault(cfg.ExpansionSteps, expansionSteps)
	kPathLength = orDefault(cfg.KPathLength, kPathLength)
	randomDepth = orDefault(cfg.RandomDepth, randomDepth)
	if cfg.RandomSeed != nil {
		t.SeedWithValue(*cfg.RandomSeed)
	}

	if len(t.corp.Transcripts(t.name)) == 0 {
		return t.initializeCorpusFromKPaths(kPathLength)
	}
	trajs := trajectories{}
	failures, err := t.checkCorpus(trajs, cfg)
	if err != nil || len(failures) > 0 {
		return failures, err
	}
	return t.randomlyExpandCorpus(trajs, expansionSteps, randomDepth)
}

// AdministerDefaults is Administer with the stock arguments: no
// expansion, k-path length 3, random depth 3.
func (t *Test) AdministerDefaults() ([]PlanHash, error) {
	return t.Administer(0, 3, 3)
}

func (t *Test) handleInvariantFailure(plan *Plan, name VarName, expected, got Value) {
	if t.OnInvariantFailure != nil {
		t.OnInvariantFailure(plan, name, expected, got)
		return
	}
	t.logger.Info("invariant failed",
		zap.String("test", plan.TestName().String()),
		zap.Uint64("plan", plan.Hash()),
		zap.String("invariant", name.String()),
		zap.String("expected", expected.String()),
		zap.String("got", got.String()))
}

func (t *Test) handleTranscriptMismatch(expected, got *Transcript) {
	if t.OnTranscriptMismatch != nil {
		t.OnTranscriptMismatch(expected, got)
		return
	}
	t.logger.Info("transcript mismatch",
		zap.String("test", expected.TestName().String()),
		zap.Uint64("plan", expected.Plan().Hash()))
}
