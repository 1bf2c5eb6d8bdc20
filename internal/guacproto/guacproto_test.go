package guacproto

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	encoded := Encode("connect", "hostname", "", "5901")
	want := "7.connect,8.hostname,0.,4.5901;"
	if string(encoded) != want {
		t.Fatalf("Encode = %q, want %q", encoded, want)
	}

	inst, err := Read(bufio.NewReader(bytes.NewReader(encoded)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if inst.Opcode != "connect" {
		t.Fatalf("Opcode = %q, want connect", inst.Opcode)
	}
	if len(inst.Args) != 3 || inst.Args[0] != "hostname" || inst.Args[1] != "" || inst.Args[2] != "5901" {
		t.Fatalf("Args = %v, want [hostname  5901]", inst.Args)
	}
}

func TestReadErrorInstructionIsDetected(t *testing.T) {
	raw := Encode("error", "backend unreachable", "512")
	inst, err := Read(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !inst.IsError() {
		t.Fatalf("expected IsError() true for opcode %q", inst.Opcode)
	}
}

func TestReadRejectsBadDelimiter(t *testing.T) {
	_, err := Read(bufio.NewReader(strings.NewReader("4.ping:")))
	if err == nil {
		t.Fatal("expected error for malformed delimiter")
	}
}

func TestHandshakeSendsExpectedSequenceAndReturnsReadyArgs(t *testing.T) {
	var sent bytes.Buffer

	serverResponses := string(Encode("args", "hostname", "port", "username", "password")) +
		string(Encode("ready", "$guacd-conn-1234"))
	r := bufio.NewReader(strings.NewReader(serverResponses))

	readyArgs, err := Handshake(&sent, r, ConnectParams{
		Protocol: "rdp",
		Hostname: "10.0.0.5",
		Port:     3389,
		Username: "alice",
		Password: "secret",
		Width:    1024,
		Height:   768,
	})
	if err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if len(readyArgs) != 1 || readyArgs[0] != "$guacd-conn-1234" {
		t.Fatalf("readyArgs = %v, want [$guacd-conn-1234]", readyArgs)
	}

	out := sent.String()
	for _, want := range []string{"6.select,3.rdp;", "4.size,4.1024,3.768,2.96;", "5.audio,", "5.video,", "5.image,", "7.connect,"} {
		if !strings.Contains(out, want) {
			t.Fatalf("sent instructions missing %q, got %q", want, out)
		}
	}
}

func TestHandshakeRejectsUnexpectedOpcode(t *testing.T) {
	var sent bytes.Buffer
	r := bufio.NewReader(strings.NewReader(string(Encode("error", "bad"))))

	_, err := Handshake(&sent, r, ConnectParams{Protocol: "vnc"})
	if err == nil {
		t.Fatal("expected error when guacd replies with error instead of args")
	}
}
