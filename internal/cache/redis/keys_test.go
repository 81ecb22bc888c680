package redis

import "testing"

func TestKeysAreNamespaced(t *testing.T) {
	k := newKeyspace("")
	cases := []struct{ got, want string }{
		{k.lock("scan"), "polyarb:lock:scan"},
		{k.rateLimit("api:1.2.3"), "polyarb:ratelimit:api:1.2.3"},
		{k.quotes("WMATIC/USDC"), "polyarb:quotes:WMATIC/USDC"},
		{k.channel("arb"), "polyarb:arb"},
		{newKeyspace("staging:").lock("scan"), "staging:lock:scan"},
		{newKeyspace(" eu ").channel("arb"), "eu:arb"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}

func TestHasPattern(t *testing.T) {
	if hasPattern("arb") {
		t.Fatal("plain channel treated as pattern")
	}
	if !hasPattern("arb:*") {
		t.Fatal("glob channel not detected")
	}
}
