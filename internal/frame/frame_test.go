package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	big := bytes.Repeat([]byte{0xff, 0x00, 0x80}, 100)
	cases := map[string][]byte{
		"empty":     {},
		"ascii":     []byte("hello"),
		"binary":    {0x00, 0x01, 0x80, 0xff, 0x7f},
		"multibyte": big,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Drain(Append(nil, payload))
			if err != nil {
				t.Fatalf("Drain: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("expected 1 payload, got %d", len(got))
			}
			if !bytes.Equal(got[0], payload) {
				t.Errorf("payload mismatch: got %x, want %x", got[0], payload)
			}
		})
	}
}

func TestEncodeMatchesAppend(t *testing.T) {
	p := []byte("payload")
	if !bytes.Equal(Encode(p), Append(nil, p)) {
		t.Error("Encode and Append(nil) differ")
	}
}

func TestDrainPreservesOrder(t *testing.T) {
	var buf []byte
	var want [][]byte
	for i := 0; i < 50; i++ {
		p := bytes.Repeat([]byte{byte(i)}, i)
		want = append(want, p)
		buf = Append(buf, p)
	}

	got, err := Drain(buf)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d payloads, got %d", len(want), len(got))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("payload %d: got %x, want %x", i, got[i], want[i])
		}
	}
}

func TestDrainEmpty(t *testing.T) {
	got, err := Drain(nil)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no payloads, got %d", len(got))
	}
}

func TestDrainTruncated(t *testing.T) {
	buf := Append(nil, []byte("first"))
	buf = Append(buf, []byte("second"))
	buf = buf[:len(buf)-2]

	got, err := Drain(buf)
	if !errors.Is(err, ErrFraming) {
		t.Fatalf("expected ErrFraming, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no payloads on error, got %d", len(got))
	}
}

func TestDrainBadPrefix(t *testing.T) {
	// A continuation byte with nothing after it is not a complete uvarint.
	if _, err := Drain([]byte{0x80}); !errors.Is(err, ErrFraming) {
		t.Fatalf("expected ErrFraming, got %v", err)
	}
}

func TestDrainedPayloadsDoNotGrowIntoNext(t *testing.T) {
	buf := Append(nil, []byte("ab"))
	buf = Append(buf, []byte("cd"))

	got, err := Drain(buf)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	_ = append(got[0], 'x')
	if string(got[1]) != "cd" {
		t.Errorf("second payload corrupted: %q", got[1])
	}
}
