package photesthesis

import (
	"testing"
)

// Trajectory behavior is internal to plan execution, so these tests
// drive runPlan / runPlanAndStabilize directly.

func planWithInt(t *testing.T, tname string, n int64) *Plan {
	t.Helper()
	plan := NewPlan(MustIntern(tname))
	if err := plan.AddParam(MustIntern("v"), Int64(n)); err != nil {
		t.Fatalf("add param: %v", err)
	}
	return plan
}

func TestTrajectory_UserTraceGrouping(t *testing.T) {
	test := NewTest(NewGrammar(), NewCorpus(), MustIntern("TraceGroup"), nil, func(t *Test) {
		t.Trace(MustIntern("seen"), t.Param(MustIntern("v")))
	})
	p1 := planWithInt(t, "TraceGroup", 1)
	p2 := planWithInt(t, "TraceGroup", 2)

	test.runPlan(p1)
	traj1 := test.trajectory
	if test.pathTrajectory != 0 {
		t.Fatalf("path trajectory must be zero without a coverage region")
	}
	test.runPlan(p1)
	if test.trajectory != traj1 {
		t.Fatalf("same plan, same trace, different trajectory")
	}
	test.runPlan(p2)
	if test.trajectory == traj1 {
		t.Fatalf("different traced values should give different trajectories")
	}
}

func TestTrajectory_CheckDoesNotTrace(t *testing.T) {
	test := NewTest(NewGrammar(), NewCorpus(), MustIntern("CheckNoTrace"), nil, func(t *Test) {
		t.Check(MustIntern("seen"), t.Param(MustIntern("v")))
	})
	test.runPlan(planWithInt(t, "CheckNoTrace", 1))
	traj1 := test.trajectory
	test.runPlan(planWithInt(t, "CheckNoTrace", 2))
	if test.trajectory != traj1 {
		t.Fatalf("checked values must not contribute to the trajectory")
	}
}

func TestTrajectory_CounterClassBuckets(t *testing.T) {
	region := make([]byte, 8)
	SetCoverageRegion(region)
	defer SetCoverageRegion(nil)

	hits := 0
	test := NewTest(NewGrammar(), NewCorpus(), MustIntern("Buckets"), nil, func(t *Test) {
		for i := 0; i < hits; i++ {
			region[0]++
		}
	})
	pathFor := func(n int) Trajectory {
		hits = n
		test.runPlan(planWithInt(t, "Buckets", 0))
		return test.pathTrajectory
	}
	// 5 and 6 hits land in the same AFL bucket; 1 and 2 do not.
	if pathFor(5) != pathFor(6) {
		t.Fatalf("5 and 6 hits must bucket together")
	}
	if pathFor(1) == pathFor(2) {
		t.Fatalf("1 and 2 hits must bucket apart")
	}
	if pathFor(0) == pathFor(1) {
		t.Fatalf("0 and 1 hits must bucket apart")
	}
}

func TestTrajectory_RegionZeroedPerRun(t *testing.T) {
	region := make([]byte, 4)
	SetCoverageRegion(region)
	defer SetCoverageRegion(nil)

	test := NewTest(NewGrammar(), NewCorpus(), MustIntern("Zeroed"), nil, func(t *Test) {
		region[0]++
	})
	test.runPlan(planWithInt(t, "Zeroed", 0))
	first := test.pathTrajectory
	test.runPlan(planWithInt(t, "Zeroed", 0))
	if test.pathTrajectory != first {
		t.Fatalf("counters must be zeroed between runs")
	}
}

func TestStabilize_MasksFlappingEdges(t *testing.T) {
	t.Setenv(EnvStabilityRetries, "3")
	region := make([]byte, 4)
	SetCoverageRegion(region)
	defer SetCoverageRegion(nil)

	runs := 0
	test := NewTest(NewGrammar(), NewCorpus(), MustIntern("Stabilize"), nil, func(t *Test) {
		region[0] = 1
		runs++
		if runs%2 == 0 {
			region[1] = 1 // flaps between runs
		}
	})
	if err := test.runPlanAndStabilize(planWithInt(t, "Stabilize", 0)); err != nil {
		t.Fatalf("stabilization should mask the flapping edge: %v", err)
	}
	if test.stabilityMask == nil || test.stabilityMask[1] != 0 {
		t.Fatalf("flapping edge not masked: %v", test.stabilityMask)
	}
	if test.stabilityMask[0] != 0xff {
		t.Fatalf("stable edge wrongly masked")
	}
}

func TestStabilize_FailsWithoutRetries(t *testing.T) {
	region := make([]byte, 4)
	SetCoverageRegion(region)
	defer SetCoverageRegion(nil)

	runs := 0
	test := NewTest(NewGrammar(), NewCorpus(), MustIntern("NoRetries"), nil, func(t *Test) {
		runs++
		if runs%2 == 0 {
			region[1] = 1
		}
	})
	err := test.runPlanAndStabilize(planWithInt(t, "NoRetries", 0))
	if !IsCode(err, CodeUnstableTrajectory) {
		t.Fatalf("expected unstable_trajectory, got %v", err)
	}
}

func TestTrajectory_CombinesUserAndPath(t *testing.T) {
	region := make([]byte, 4)
	SetCoverageRegion(region)
	defer SetCoverageRegion(nil)

	test := NewTest(NewGrammar(), NewCorpus(), MustIntern("Combine"), nil, func(t *Test) {
		region[0] = 1
		t.Trace(MustIntern("seen"), t.Param(MustIntern("v")))
	})
	test.runPlan(planWithInt(t, "Combine", 1))
	both := test.trajectory
	user := test.userTrajectory
	path := test.pathTrajectory
	if user == 0 || path == 0 {
		t.Fatalf("both trajectory halves should be populated")
	}
	if both == user || both == path {
		t.Fatalf("combined trajectory should mix both halves")
	}
}
