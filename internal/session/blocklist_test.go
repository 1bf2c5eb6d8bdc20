package session

import (
	"reflect"
	"testing"
)

func TestMatchedBlocklistTokensScenario(t *testing.T) {
	// S1: blocklist {"rm"}, client sends "rm -rf /" -> exactly one
	// blocklist audit for "rm".
	blocklist := map[string]struct{}{"rm": {}}

	got := matchedBlocklistTokens("rm -rf /", blocklist)
	want := []string{"rm"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("matchedBlocklistTokens = %v, want %v", got, want)
	}
}

func TestMatchedBlocklistTokensNoMatch(t *testing.T) {
	blocklist := map[string]struct{}{"rm": {}, "dd": {}}

	got := matchedBlocklistTokens("ls -la /home", blocklist)
	if got != nil {
		t.Fatalf("matchedBlocklistTokens = %v, want nil", got)
	}
}

func TestMatchedBlocklistTokensDedupsRepeats(t *testing.T) {
	blocklist := map[string]struct{}{"rm": {}}

	got := matchedBlocklistTokens("rm rm rm -rf /", blocklist)
	want := []string{"rm"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("matchedBlocklistTokens = %v, want %v", got, want)
	}
}

func TestMatchedBlocklistTokensEmptySnapshotMatchesNothing(t *testing.T) {
	got := matchedBlocklistTokens("rm -rf /", map[string]struct{}{})
	if got != nil {
		t.Fatalf("matchedBlocklistTokens = %v, want nil for empty blocklist", got)
	}
}
