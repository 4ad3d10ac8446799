// Copyright (c) 2015, RetailNext, Inc.
// All rights reserved.

package hllpp

import "testing"

func TestMarshalRoundTrip(t *testing.T) {
	h := newTestCounter(t)
	for i := uint64(0); i < 5000; i++ {
		h.Add(intToBytes(i))
	}

	want := h.Count()

	data := h.Marshal()
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.Count() != want {
		t.Errorf("got %d, want %d", got.Count(), want)
	}

	eq, err := IsEqual(h, got)
	if err != nil {
		t.Fatalf("IsEqual: %v", err)
	}
	if !eq {
		t.Error("round-tripped counter is not equal to the original")
	}
}

func TestMarshalLengthMatchesHeader(t *testing.T) {
	h := newTestCounter(t)
	h.Add([]byte("barclay"))

	data := h.Marshal()
	if len(data) != Length(h) {
		t.Errorf("Marshal produced %d bytes, Length reported %d", len(data), Length(h))
	}
}

func TestUnmarshalRejectsTruncated(t *testing.T) {
	if _, err := Unmarshal([]byte{1, 2, 3}); err == nil {
		t.Error("expected an error for a truncated payload")
	}
}

func TestUnmarshalRejectsLengthMismatch(t *testing.T) {
	h := newTestCounter(t)
	h.Add([]byte("barclay"))

	data := h.Marshal()
	data = append(data, 0xff)

	if _, err := Unmarshal(data); err == nil {
		t.Error("expected a length mismatch error")
	}
}

func TestCompressDecompressDense(t *testing.T) {
	h := newTestCounter(t)
	for i := uint64(0); i < 200000; i++ {
		h.Add(intToBytes(i))
	}
	if h.Sparse() {
		t.Fatal("expected dense representation after 200000 adds")
	}

	want := h.Count()

	if err := h.Compress(); err != nil {
		t.Fatalf("Compress: %v", err)
	}

	// A run of near-uniform small register values should always shrink
	// under LZ compression, but Compress aborts rather than force a
	// pointless rewrite if it somehow doesn't; only check
	// the round trip and the already-compressed guard in the case where
	// it actually did.
	if h.b >= 0 {
		t.Skip("dense body did not compress smaller; nothing further to check")
	}

	if err := h.Compress(); err == nil {
		t.Error("expected error compressing an already-compressed counter")
	}

	if err := h.Decompress(); err != nil {
		t.Fatalf("Decompress: %v", err)
	}

	if h.Count() != want {
		t.Errorf("got %d, want %d", h.Count(), want)
	}
}

func TestCompressDecompressSparse(t *testing.T) {
	h := newTestCounter(t)
	for i := uint64(0); i < 50; i++ {
		h.Add(intToBytes(i))
	}
	if !h.Sparse() {
		t.Fatal("expected sparse representation after 50 adds")
	}

	want := h.Count()

	if err := h.Compress(); err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if err := h.Decompress(); err != nil {
		t.Fatalf("Decompress: %v", err)
	}

	if h.Count() != want {
		t.Errorf("got %d, want %d", h.Count(), want)
	}
}

func TestMarshalCompressedRoundTrip(t *testing.T) {
	h := newTestCounter(t)
	for i := uint64(0); i < 300000; i++ {
		h.Add(intToBytes(i))
	}

	want := h.Count()

	if err := h.Compress(); err != nil {
		t.Fatalf("Compress: %v", err)
	}

	data := h.Marshal()
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.Count() != want {
		t.Errorf("got %d, want %d", got.Count(), want)
	}
}

func TestUpgradeLegacy(t *testing.T) {
	h := newTestCounter(t)
	for i := uint64(0); i < 50; i++ {
		h.Add(intToBytes(i))
	}
	h.flushTmpSet()

	legacy := h.Marshal()
	legacy[4] = legacyVersion

	up, err := Upgrade(legacy)
	if err != nil {
		t.Fatalf("Upgrade: %v", err)
	}

	if up.Count() != h.Count() {
		t.Errorf("got %d, want %d", up.Count(), h.Count())
	}
}

func TestUpgradeRejectsCurrentVersion(t *testing.T) {
	h := newTestCounter(t)
	h.Add([]byte("barclay"))

	if _, err := Upgrade(h.Marshal()); err == nil {
		t.Error("expected an error upgrading an already-current payload")
	}
}

func TestSize(t *testing.T) {
	n, err := Size(defaultNDistinct, defaultError)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if n <= headerSize {
		t.Errorf("got %d, expected more than just the header", n)
	}
}
