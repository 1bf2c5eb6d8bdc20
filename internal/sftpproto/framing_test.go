package sftpproto

import (
	"bytes"
	"reflect"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		opcode byte
		header map[string]interface{}
		data   []byte
	}{
		{"empty header and data", 0x01, map[string]interface{}{}, nil},
		{"typical header", 0x02, map[string]interface{}{"filename": "report.txt", "size": float64(42)}, []byte("payload bytes")},
		{"binary-ish data", 0xFF, map[string]interface{}{"chunk": float64(3)}, []byte{0x00, 0x01, 0xFE, 0xFF}},
		{"large-ish header", 0x05, map[string]interface{}{"path": string(bytes.Repeat([]byte("a"), 5000))}, []byte("x")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			packed, err := Pack(tc.opcode, tc.header, tc.data)
			if err != nil {
				t.Fatalf("Pack: %v", err)
			}

			opcode, header, data, err := Unpack(packed)
			if err != nil {
				t.Fatalf("Unpack: %v", err)
			}
			if opcode != tc.opcode {
				t.Errorf("opcode = %v, want %v", opcode, tc.opcode)
			}
			if !reflect.DeepEqual(header, tc.header) {
				t.Errorf("header = %v, want %v", header, tc.header)
			}
			if !bytes.Equal(data, tc.data) {
				t.Errorf("data = %v, want %v", data, tc.data)
			}
		})
	}
}

func TestUnpackRejectsTruncatedFrame(t *testing.T) {
	if _, _, _, err := Unpack([]byte{0x01}); err == nil {
		t.Fatal("expected error for frame shorter than the header-length field")
	}
}

func TestUnpackRejectsHeaderLengthPastFrameEnd(t *testing.T) {
	frame := []byte{0x01, 0x00, 0x10} // claims a 16-byte header but has none
	if _, _, _, err := Unpack(frame); err == nil {
		t.Fatal("expected error when declared header length exceeds the frame")
	}
}

func TestPackRejectsOversizedHeader(t *testing.T) {
	huge := make(map[string]interface{}, 1)
	huge["blob"] = string(bytes.Repeat([]byte("a"), 1<<16))
	if _, err := Pack(0x01, huge, nil); err == nil {
		t.Fatal("expected error for header exceeding the u16 length field")
	}
}
