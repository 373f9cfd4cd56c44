package usecase

import "testing"

func TestQuerySignatureNormalizesWhitespaceAndCase(t *testing.T) {
	a := QuerySignature("Termination  Notice\tPeriod", "m1")
	b := QuerySignature("termination notice period", "m1")
	if a != b {
		t.Fatalf("normalized queries must share a signature: %s vs %s", a, b)
	}
}

func TestQuerySignatureDependsOnModelVersion(t *testing.T) {
	if QuerySignature("q", "m1") == QuerySignature("q", "m2") {
		t.Fatal("different model versions must not share a signature")
	}
}

func TestQuerySignatureDiffersForDifferentQueries(t *testing.T) {
	if QuerySignature("q1", "m1") == QuerySignature("q2", "m1") {
		t.Fatal("different queries must not share a signature")
	}
	if len(QuerySignature("q1", "m1")) != 64 {
		t.Fatal("signature must be a sha-256 hex digest")
	}
}
