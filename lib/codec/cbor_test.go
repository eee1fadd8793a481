// Copyright 2026 The Playgrid Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"

	"github.com/playgrid/playgrid/lib/ref"
)

func TestDeterministicEncoding(t *testing.T) {
	value := map[string]any{
		"owner": "@alice:playgrid.local",
		"slot":  1,
		"dims":  []int{60, 24},
	}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same value produced different CBOR bytes")
	}
}

func TestRefTypesRoundTrip(t *testing.T) {
	type envelope struct {
		Session ref.SessionID `json:"session"`
		Owner   ref.UserID    `json:"owner"`
	}
	original := envelope{
		Session: ref.MustParseSessionID("g-0011223344556677"),
		Owner:   ref.MustParseUserID("@alice:playgrid.local"),
	}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip changed value: got %+v, want %+v", decoded, original)
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	data, err := Marshal(map[string]any{"known": 1, "unknown": "later-version-field"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var target struct {
		Known int `json:"known"`
	}
	if err := Unmarshal(data, &target); err != nil {
		t.Fatalf("unmarshal with unknown field: %v", err)
	}
	if target.Known != 1 {
		t.Errorf("known = %d, want 1", target.Known)
	}
}
