package session

import (
	"strings"
	"testing"
)

// FuzzSessionDecode exercises the binary session decoder with arbitrary inputs.
// Goal: no panics; a successful decode must re-encode to the same bytes.
func FuzzSessionDecode(f *testing.F) {
	sess := &Session{
		UserID:      "user1",
		Email:       "ada@campus.edu",
		DisplayName: "ada",
		Role:        "faculty",
		RefreshHash: [32]byte{3},
		CreatedAt:   1700000000,
		ExpiresAt:   1700003600,
	}
	encoded, err := Encode(sess)
	if err == nil {
		f.Add(encoded)
	}

	for _, seed := range [][]byte{{}, {0}, {CurrentSchemaVersion}, {255, 255, 255}} {
		f.Add(seed)
	}
	for _, cut := range []int{offCreatedAt, headerLen, headerLen + 3} {
		if cut < len(encoded) {
			f.Add(encoded[:cut])
		}
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := Decode(data)
		if err != nil {
			return
		}

		out, err := Encode(s)
		if err != nil {
			t.Fatalf("re-encode failed: %v", err)
		}
		if string(out) != string(data) {
			t.Fatal("decode/encode is not an identity")
		}
	})
}

func TestDecodeRejectsUnsupportedSchemaVersion(t *testing.T) {
	if _, err := Decode([]byte{99}); err == nil {
		t.Fatal("expected unsupported schema version error")
	}
}

func TestEncodeRejectsOversizedField(t *testing.T) {
	if _, err := Encode(&Session{Email: strings.Repeat("a", maxFieldLen+1)}); err == nil {
		t.Fatal("expected oversized email to be rejected")
	}
}

func TestHeaderOffsetsMatchLayout(t *testing.T) {
	sess := &Session{UserID: "u", RefreshHash: [32]byte{0: 0xAA, 31: 0xBB}, CreatedAt: 7, ExpiresAt: 9}
	blob, err := Encode(sess)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if blob[0] != CurrentSchemaVersion || blob[offExpiresAt+7] != 9 || blob[offCreatedAt+7] != 7 {
		t.Fatalf("unexpected header % x", blob[:offRefreshHash])
	}
	if blob[offRefreshHash] != 0xAA || blob[headerLen-1] != 0xBB {
		t.Fatal("refresh hash not at its fixed offset")
	}
}
