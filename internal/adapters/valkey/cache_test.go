package valkey

import "testing"

func TestKey(t *testing.T) {
	if got := Key("places:nearby:1"); got != "gapfinder:places:nearby:1" {
		t.Errorf("unexpected key %q", got)
	}
}
