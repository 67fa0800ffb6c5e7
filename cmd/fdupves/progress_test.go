package main

import (
	"io"
	"testing"
	"time"

	"github.com/naihe2010/fdupves/matcher"
)

func waitReturns(t *testing.T, pr *progress) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		pr.wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("wait did not return")
	}
}

func TestProgressWaitWithUnfinishedBar(t *testing.T) {
	t.Parallel()

	pr := newProgress(io.Discard)
	for i := 1; i <= 3; i++ {
		pr.update(matcher.Step{Doing: "Compare video hash value", Now: i, Total: 5})
	}
	waitReturns(t, pr)
}

func TestProgressOutOfOrderSteps(t *testing.T) {
	t.Parallel()

	pr := newProgress(io.Discard)
	doing := "Generate video hash value"
	pr.update(matcher.Step{Doing: doing, Now: 3, Total: 4})
	first := pr.bars[doing]
	pr.update(matcher.Step{Doing: doing, Now: 2, Total: 4})
	if pr.bars[doing] != first || first.now != 3 {
		t.Fatalf("a late step replaced the bar or moved it back to %d", pr.bars[doing].now)
	}
	pr.update(matcher.Step{Doing: doing, Now: 4, Total: 4})

	// the next bucket reuses the label with the same total
	pr.update(matcher.Step{Doing: doing, Now: 1, Total: 4})
	if pr.bars[doing] == first {
		t.Fatal("a finished bar was reused")
	}
	// and another one with a different total
	pr.update(matcher.Step{Doing: doing, Now: 1, Total: 7})
	pr.update(matcher.Step{Doing: "Probe video duration", Now: 2, Total: 2})
	waitReturns(t, pr)
}
