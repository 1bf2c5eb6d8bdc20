package session

import "testing"

func TestReconstructorHistoryScenario(t *testing.T) {
	// S2: inputs "a", "b", "c", "\r" → cmd_history == ["abc"], cmd_tmp == "", cursor_index == 0
	var l lineReconstructor
	for _, in := range []string{"a", "b", "c", "\r"} {
		l.Apply(in)
	}

	if len(l.cmdHistory) != 1 || l.cmdHistory[0] != "abc" {
		t.Fatalf("cmdHistory = %v, want [abc]", l.cmdHistory)
	}
	if l.cmdTmp != "" {
		t.Fatalf("cmdTmp = %q, want empty", l.cmdTmp)
	}
	if l.cursorIndex != 0 {
		t.Fatalf("cursorIndex = %d, want 0", l.cursorIndex)
	}
}

func TestReconstructorBackspaceMidLineScenario(t *testing.T) {
	// S3 per the literal cursor-index table: "abc" with index 0 sees
	// the first left-arrow jump to len(cmd_tmp)-2 == 1 (the documented
	// off-by-one quirk), the second left-arrow decrement it back to 0,
	// and backspace at index 0 drop the last character ("position-two",
	// i.e. 'c' at 0-based index 2) leaving "ab". This matches the
	// original ssh_websocket.py gen_cmd trace exactly; the headline
	// "bc" value elsewhere describing this scenario is inconsistent
	// with its own "position-two char deleted" explanation and with
	// the rule table, so it is not reproduced here.
	var l lineReconstructor
	for _, in := range []string{"a", "b", "c", "\x1b[D", "\x1b[D", "\x7f"} {
		l.Apply(in)
	}

	if l.cmdTmp != "ab" {
		t.Fatalf("cmdTmp = %q, want \"ab\"", l.cmdTmp)
	}
}

func TestReconstructorCtrlCResetsCursorToStart(t *testing.T) {
	var l lineReconstructor
	l.Apply("a")
	l.Apply("b")
	l.Apply("\x03")
	if l.cursorIndex != 0 {
		t.Fatalf("cursorIndex = %d, want 0 after ctrl-c", l.cursorIndex)
	}
}

func TestReconstructorBellIsIgnored(t *testing.T) {
	var l lineReconstructor
	l.Apply("a")
	l.Apply("\x07")
	if l.cmdTmp != "a" {
		t.Fatalf("cmdTmp = %q, want \"a\" (bell should be a no-op)", l.cmdTmp)
	}
}

func TestFinalizeHistoryRedactsViSession(t *testing.T) {
	history := []string{"ls", "vi file.txt", "i hello", "\x1bESC", ":wq", "pwd"}
	got := finalizeHistory(history)
	want := []string{"ls", "vi file.txt", "pwd"}

	if len(got) != len(want) {
		t.Fatalf("finalizeHistory = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("finalizeHistory[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFinalizeHistoryPrefersFgAnchorOverVi(t *testing.T) {
	history := []string{"vi file.txt", "i hello", "fg", ":wq", "pwd"}
	got := finalizeHistory(history)
	want := []string{"vi file.txt", "i hello", "fg", "pwd"}

	if len(got) != len(want) {
		t.Fatalf("finalizeHistory = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("finalizeHistory[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFinalizeHistoryCollapsesCtrlZMarker(t *testing.T) {
	history := []string{"vi file.txt", "\x1abg resumed"}
	got := finalizeHistory(history)
	if got[1] != "bg resumed" {
		t.Fatalf("ctrl-z entry = %q, want %q", got[1], "bg resumed")
	}
}
