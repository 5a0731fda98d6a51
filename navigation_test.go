package apiexec

import (
	"sync"
	"testing"
)

func TestNavigationGateFiresOnce(t *testing.T) {
	nav := &recordingNavigator{}
	gate := newNavigationGate(nav.Navigate)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gate.Redirect(DefaultLoginPath)
		}()
	}
	wg.Wait()

	if calls := nav.Calls(); len(calls) != 1 || calls[0] != DefaultLoginPath {
		t.Fatalf("navigator calls = %v, want one call to %s", calls, DefaultLoginPath)
	}

	gate.Reset()
	if !gate.Redirect("/again") {
		t.Error("Redirect after Reset should fire")
	}
	if len(nav.Calls()) != 2 {
		t.Errorf("expected a second navigation, got %v", nav.Calls())
	}
}

func TestNavigationGateWithoutNavigator(t *testing.T) {
	gate := newNavigationGate(nil)
	if gate.Redirect(DefaultLoginPath) {
		t.Error("a gate without navigator never fires")
	}
}
