package natsadapter

import (
	"testing"

	"github.com/samirrijal/gapfinder/internal/core/domain"
)

func TestSearchSubject(t *testing.T) {
	e := &domain.SearchEvent{SearchID: "abc", State: domain.SearchSucceeded}
	if got := SearchSubject(e); got != "gapfinder.search.abc.succeeded" {
		t.Errorf("unexpected subject %q", got)
	}
}

func TestSearchFilter(t *testing.T) {
	if got := SearchFilter(""); got != "gapfinder.search.>" {
		t.Errorf("unexpected filter %q", got)
	}
	if got := SearchFilter("abc"); got != "gapfinder.search.abc.>" {
		t.Errorf("unexpected filter %q", got)
	}
}
