package store

import "testing"

func TestKeys_Layout(t *testing.T) {
	keys := NewKeys("packet")

	if got := keys.Packet("p1"); got != "packet:p1" {
		t.Errorf("Packet = %q", got)
	}
	if got := keys.Shares("p1"); got != "packet:p1:shares" {
		t.Errorf("Shares = %q", got)
	}
	if got := keys.Claim("p1", "u1"); got != "packet:claim:p1:u1" {
		t.Errorf("Claim = %q", got)
	}
	if got := keys.Lock("p1", "u1"); got != "packet:lock:p1:u1" {
		t.Errorf("Lock = %q", got)
	}
}

func TestKeys_EmptyPrefixFallsBack(t *testing.T) {
	keys := NewKeys("")
	if got := keys.Packet("p1"); got != "packet:p1" {
		t.Errorf("Packet = %q, want default prefix", got)
	}
}

func TestKeys_CustomPrefix(t *testing.T) {
	keys := NewKeys("drops")
	if got := keys.Claim("p1", "u1"); got != "drops:claim:p1:u1" {
		t.Errorf("Claim = %q", got)
	}
}
