package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"worklane/api/internal/graph"
)

func TestProjectRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := graph.StandardAgency("Acme")

	if err := svc.EnsureProjectRepo("proj-1", initial, "Avery"); err != nil {
		t.Fatalf("EnsureProjectRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "proj-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	// Second call is a no-op.
	if err := svc.EnsureProjectRepo("proj-1", graph.Blank(), "Avery"); err != nil {
		t.Fatalf("EnsureProjectRepo() second call error = %v", err)
	}

	updated := initial
	updated.Nodes = append(graph.CloneNodes(initial.Nodes), graph.Node{
		ID:   "reviewer",
		Type: graph.NodePerson,
		Person: &graph.PersonData{
			Name: "Reviewer",
		},
	})
	commit, err := svc.Save("proj-1", updated, "Avery", "Add reviewer")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}

	head, headCommit, err := svc.Head("proj-1")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if len(head.Nodes) != len(initial.Nodes)+1 {
		t.Fatalf("expected %d nodes at head, got %d", len(initial.Nodes)+1, len(head.Nodes))
	}
	if headCommit.Hash != commit.Hash {
		t.Fatalf("head commit %s does not match save commit %s", headCommit.Hash, commit.Hash)
	}

	history, err := svc.History("proj-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if !strings.Contains(history[0].Message, "Add reviewer") {
		t.Fatalf("unexpected newest history entry: %+v", history[0])
	}

	byHash, err := svc.GetByHash("proj-1", commit.Hash)
	if err != nil {
		t.Fatalf("GetByHash() error = %v", err)
	}
	if len(byHash.Nodes) != len(head.Nodes) {
		t.Fatalf("GetByHash node count mismatch: %d vs %d", len(byHash.Nodes), len(head.Nodes))
	}
}

func TestSaveRoundTripPreservesGraph(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := graph.StandardAgency("Acme")
	if err := svc.EnsureProjectRepo("proj-1", initial, "Avery"); err != nil {
		t.Fatalf("EnsureProjectRepo() error = %v", err)
	}

	head, _, err := svc.Head("proj-1")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if HasChanges(initial, head) {
		t.Fatalf("graph changed across round-trip:\nwant=%s\ngot=%s",
			string(normalizeGraph(initial)), string(normalizeGraph(head)))
	}

	// Edge payloads survive too.
	var approves int
	for _, e := range head.Edges {
		if e.Type == graph.EdgeApproves {
			approves++
			if e.Approves == nil || e.Approves.Order == 0 {
				t.Fatalf("approval payload lost on edge %s", e.ID)
			}
		}
	}
	if approves != 2 {
		t.Fatalf("expected 2 approval edges after round-trip, got %d", approves)
	}
}

func TestLoadForDate(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := graph.StandardAgency("Acme")
	if err := svc.EnsureProjectRepo("proj-1", initial, "Avery"); err != nil {
		t.Fatalf("EnsureProjectRepo() error = %v", err)
	}

	// A date far in the past predates every commit.
	_, _, err := svc.LoadForDate("proj-1", time.Unix(0, 0))
	if !errors.Is(err, ErrNoSnapshotForDate) {
		t.Fatalf("expected ErrNoSnapshotForDate, got %v", err)
	}

	// A date in the future resolves to the newest commit.
	snap, commit, err := svc.LoadForDate("proj-1", time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("LoadForDate() error = %v", err)
	}
	if len(snap.Nodes) != len(initial.Nodes) {
		t.Fatalf("expected %d nodes, got %d", len(initial.Nodes), len(snap.Nodes))
	}
	if commit.Hash == "" {
		t.Fatal("expected commit info")
	}
}

func TestTagVersion(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureProjectRepo("proj-1", graph.StandardAgency("Acme"), "Avery"); err != nil {
		t.Fatalf("EnsureProjectRepo() error = %v", err)
	}
	_, commit, err := svc.Head("proj-1")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}

	if err := svc.TagVersion("proj-1", commit.Hash, "policy-v1"); err != nil {
		t.Fatalf("TagVersion() error = %v", err)
	}
	// Tagging the same version again is a no-op.
	if err := svc.TagVersion("proj-1", commit.Hash, "policy-v1"); err != nil {
		t.Fatalf("TagVersion() repeat error = %v", err)
	}
}

func TestConcurrentSaves(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := graph.StandardAgency("Acme")
	if err := svc.EnsureProjectRepo("proj-1", initial, "Avery"); err != nil {
		t.Fatalf("EnsureProjectRepo() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			next := graph.Snapshot{
				Nodes: graph.CloneNodes(initial.Nodes),
				Edges: graph.CloneEdges(initial.Edges),
			}
			next.Nodes[2].Person.Name = fmt.Sprintf("worker-%02d", idx)
			if _, err := svc.Save("proj-1", next, "Avery", fmt.Sprintf("Save %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("Save() concurrent error = %v", err)
		}
	}

	history, err := svc.History("proj-1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) < writers+1 {
		t.Fatalf("expected at least %d commits in history, got %d", writers+1, len(history))
	}

	head, _, err := svc.Head("proj-1")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if !strings.HasPrefix(head.Nodes[2].Person.Name, "worker-") {
		t.Fatalf("unexpected head graph after concurrent saves: %+v", head.Nodes[2])
	}
}
