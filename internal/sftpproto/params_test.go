package sftpproto

import "testing"

func TestDeleteParamsTruthy(t *testing.T) {
	cases := []struct {
		isDir string
		want  bool
	}{
		{"", true},
		{"true", true},
		{"1", true},
		{"False", true}, // only the exact lowercase literal "false" is falsy
		{"false", false},
	}

	for _, tc := range cases {
		got := DeleteParams{IsDir: tc.isDir}.Truthy()
		if got != tc.want {
			t.Errorf("DeleteParams{IsDir: %q}.Truthy() = %v, want %v", tc.isDir, got, tc.want)
		}
	}
}
