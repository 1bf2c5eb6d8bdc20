package session

import "testing"

func TestNextCwdPathEscapeAtHomeRoot(t *testing.T) {
	// S4: current_path == home root, client sends CWD {} -> unchanged.
	got := nextCwdPath("/home/jms", "/home/jms", "")
	if got != "/home/jms" {
		t.Fatalf("nextCwdPath = %q, want %q", got, "/home/jms")
	}
}

func TestNextCwdPathStepsUpOneLevel(t *testing.T) {
	got := nextCwdPath("/home/jms/projects", "/home/jms", "")
	if got != "/home/jms" {
		t.Fatalf("nextCwdPath = %q, want %q", got, "/home/jms")
	}
}

func TestNextCwdPathDescendsIntoNamedDir(t *testing.T) {
	got := nextCwdPath("/home/jms", "/home/jms", "projects")
	if got != "/home/jms/projects" {
		t.Fatalf("nextCwdPath = %q, want %q", got, "/home/jms/projects")
	}
}
