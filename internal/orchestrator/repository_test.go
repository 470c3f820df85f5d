package orchestrator

import (
	"errors"
	"testing"
	"time"

	"hls-assembler/internal/hls"
)

func TestInMemoryRepository_lifecycle(t *testing.T) {
	repo := NewInMemoryRepository()
	id := JobID("j1")

	t.Run("create", func(t *testing.T) {
		if err := repo.Create(Job{ID: id, LogicalName: "ep1"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, ok := repo.Get(id)
		if !ok {
			t.Fatal("Get: ok false")
		}
		if got.Stage != StagePending || got.Done {
			t.Errorf("new job: stage=%q done=%v", got.Stage, got.Done)
		}
		if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
			t.Error("timestamps should be set")
		}
	})

	t.Run("duplicate_create", func(t *testing.T) {
		if err := repo.Create(Job{ID: id}); !errors.Is(err, ErrJobExists) {
			t.Errorf("expected ErrJobExists, got %v", err)
		}
	})

	t.Run("stage_updates", func(t *testing.T) {
		for _, st := range []hls.Stage{hls.StageParsing, hls.StageParsed, hls.StageLocating, hls.StageFetching} {
			if err := repo.UpdateStage(id, st); err != nil {
				t.Fatalf("UpdateStage(%s): %v", st, err)
			}
		}
		got, _ := repo.Get(id)
		if got.Stage != hls.StageFetching {
			t.Errorf("stage: got %q", got.Stage)
		}
		if repo.ActiveJobCount() != 1 {
			t.Errorf("ActiveJobCount: got %d want 1", repo.ActiveJobCount())
		}
	})

	t.Run("complete", func(t *testing.T) {
		art := hls.Artifact{Name: "ep1.ts", Path: "/out/ep1.ts", Size: 9, Segments: 3}
		if err := repo.Complete(id, art); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		got, _ := repo.Get(id)
		if !got.Done || got.Stage != hls.StageCleanedUp {
			t.Errorf("completed job: stage=%q done=%v", got.Stage, got.Done)
		}
		if got.Artifact == nil || got.Artifact.Path != "/out/ep1.ts" {
			t.Errorf("artifact: got %+v", got.Artifact)
		}
		if repo.ActiveJobCount() != 0 {
			t.Errorf("ActiveJobCount: got %d want 0", repo.ActiveJobCount())
		}
	})

	t.Run("finished_job_is_immutable", func(t *testing.T) {
		if err := repo.UpdateStage(id, hls.StageFetching); !errors.Is(err, ErrJobFinished) {
			t.Errorf("UpdateStage after finish: got %v", err)
		}
		if err := repo.Fail(id, errors.New("late")); !errors.Is(err, ErrJobFinished) {
			t.Errorf("Fail after finish: got %v", err)
		}
	})
}

func TestInMemoryRepository_Complete_cleanup_error(t *testing.T) {
	repo := NewInMemoryRepository()
	_ = repo.Create(Job{ID: "j1"})

	err := repo.Complete("j1", hls.Artifact{Path: "/out/a.ts", CleanupErr: errors.New("busy")})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, _ := repo.Get("j1")
	if got.Stage != hls.StageAssembled {
		t.Errorf("stage: got %q want %q", got.Stage, hls.StageAssembled)
	}
	if got.CleanupError != "busy" || !got.Done {
		t.Errorf("cleanup error: got %q done=%v", got.CleanupError, got.Done)
	}
}

func TestInMemoryRepository_Fail(t *testing.T) {
	repo := NewInMemoryRepository()
	_ = repo.Create(Job{ID: "j1"})
	_ = repo.UpdateStage("j1", hls.StageFetching)

	runErr := &hls.StageError{
		Stage: hls.StageFetching,
		Err:   &hls.BatchFetchFailedError{FailedIndices: []int{4}},
	}
	if err := repo.Fail("j1", runErr); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	got, _ := repo.Get("j1")
	if got.Stage != StageFailed || got.FailedStage != hls.StageFetching {
		t.Errorf("stage=%q failed_stage=%q", got.Stage, got.FailedStage)
	}
	if got.ErrorKind != hls.KindBatchFetchFailed {
		t.Errorf("error kind: got %q", got.ErrorKind)
	}
	if got.Error == "" {
		t.Error("error message should be recorded")
	}
}

func TestInMemoryRepository_Fail_without_stage(t *testing.T) {
	repo := NewInMemoryRepository()
	_ = repo.Create(Job{ID: "j1"})

	_ = repo.Fail("j1", errors.New("boom"))
	got, _ := repo.Get("j1")
	if got.FailedStage != StagePending {
		t.Errorf("failed stage should fall back to current stage, got %q", got.FailedStage)
	}
	if got.ErrorKind != hls.KindInternal {
		t.Errorf("error kind: got %q", got.ErrorKind)
	}
}

func TestInMemoryRepository_unknown_job(t *testing.T) {
	repo := NewInMemoryRepository()
	if _, ok := repo.Get("missing"); ok {
		t.Error("Get missing: expected ok false")
	}
	if err := repo.UpdateStage("missing", hls.StageParsed); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("UpdateStage missing: got %v", err)
	}
	if err := repo.Complete("missing", hls.Artifact{}); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Complete missing: got %v", err)
	}
}

func TestInMemoryRepository_List_ordered(t *testing.T) {
	repo := NewInMemoryRepository()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = repo.Create(Job{ID: "c", CreatedAt: base.Add(2 * time.Second)})
	_ = repo.Create(Job{ID: "a", CreatedAt: base})
	_ = repo.Create(Job{ID: "b", CreatedAt: base.Add(time.Second)})

	jobs := repo.List()
	if len(jobs) != 3 {
		t.Fatalf("List: got %d jobs", len(jobs))
	}
	if jobs[0].ID != "a" || jobs[1].ID != "b" || jobs[2].ID != "c" {
		t.Errorf("List order: got %s,%s,%s", jobs[0].ID, jobs[1].ID, jobs[2].ID)
	}
}

func TestInMemoryRepository_Get_returns_copy(t *testing.T) {
	repo := NewInMemoryRepository()
	_ = repo.Create(Job{ID: "j1", LogicalName: "ep1"})

	got, _ := repo.Get("j1")
	got.LogicalName = "mutated"

	again, _ := repo.Get("j1")
	if again.LogicalName != "ep1" {
		t.Errorf("repository state changed through a copy: %q", again.LogicalName)
	}
}
