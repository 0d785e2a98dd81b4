package utils

import (
	"testing"
	"time"
)

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("AETHER_TEST_TTL", "90s")
	if got := GetEnvAsDuration("AETHER_TEST_TTL", time.Minute, nil); got != 90*time.Second {
		t.Fatalf("got %v", got)
	}
	t.Setenv("AETHER_TEST_TTL", "120")
	if got := GetEnvAsDuration("AETHER_TEST_TTL", time.Minute, nil); got != 2*time.Minute {
		t.Fatalf("got %v", got)
	}
	t.Setenv("AETHER_TEST_TTL", "soon")
	if got := GetEnvAsDuration("AETHER_TEST_TTL", time.Minute, nil); got != time.Minute {
		t.Fatalf("got %v", got)
	}
}

func TestGetEnvAsBoolAndInt(t *testing.T) {
	t.Setenv("AETHER_TEST_FLAG", "off")
	if GetEnvAsBool("AETHER_TEST_FLAG", true, nil) {
		t.Fatalf("expected false")
	}
	t.Setenv("AETHER_TEST_N", "x")
	if got := GetEnvAsInt("AETHER_TEST_N", 7, nil); got != 7 {
		t.Fatalf("got %d", got)
	}
	if got := GetEnv("AETHER_TEST_MISSING_KEY", "fallback", nil); got != "fallback" {
		t.Fatalf("got %q", got)
	}
}

func TestGetEnvAsListAndMap(t *testing.T) {
	t.Setenv("AETHER_TEST_LIST", " http://a , ,http://b")
	got := GetEnvAsList("AETHER_TEST_LIST", nil, nil)
	if len(got) != 2 || got[0] != "http://a" || got[1] != "http://b" {
		t.Fatalf("list = %v", got)
	}
	t.Setenv("AETHER_TEST_MAP", "authorization=Bearer x,broken, k = v ")
	m := GetEnvAsMap("AETHER_TEST_MAP", nil)
	if len(m) != 2 || m["authorization"] != "Bearer x" || m["k"] != "v" {
		t.Fatalf("map = %v", m)
	}
	t.Setenv("AETHER_TEST_RATIO", "0.25")
	if got := GetEnvAsFloat("AETHER_TEST_RATIO", 1, nil); got != 0.25 {
		t.Fatalf("ratio = %v", got)
	}
}
