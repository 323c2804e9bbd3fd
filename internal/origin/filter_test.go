package origin

import (
	"reflect"
	"sync"
	"testing"

	"github.com/danmuck/globalbehavior/internal/testutil/testlog"
)

func TestEmptyFilterAcceptsAll(t *testing.T) {
	testlog.Start(t)
	f := NewFilter()
	for _, o := range []string{"", "null", "https://a.example", "http://localhost:3000"} {
		if !f.Check(o) {
			t.Fatalf("empty filter rejected %q", o)
		}
	}
	if f.Filtering() {
		t.Fatalf("empty filter must not be filtering")
	}
}

func TestAllowSwitchesToAllowListMode(t *testing.T) {
	testlog.Start(t)
	f := NewFilter()
	f.Allow("https://a.example")
	if !f.Filtering() {
		t.Fatalf("expected allow-list mode")
	}
	if !f.Check("https://a.example") {
		t.Fatalf("allowed origin rejected")
	}
	for _, o := range []string{"https://b.example", "https://a.example/", "HTTPS://A.EXAMPLE", ""} {
		if f.Check(o) {
			t.Fatalf("origin %q must be rejected (exact match only)", o)
		}
	}
}

func TestAllowKeepsDuplicatesInOrder(t *testing.T) {
	testlog.Start(t)
	f := NewFilter("https://a.example", "https://b.example")
	f.Allow("https://a.example")
	want := []string{"https://a.example", "https://b.example", "https://a.example"}
	if got := f.Origins(); !reflect.DeepEqual(got, want) {
		t.Fatalf("origins got=%v want=%v", got, want)
	}
	if !f.Check("https://b.example") {
		t.Fatalf("expected b to be allowed")
	}
}

func TestFilterConcurrentUse(t *testing.T) {
	testlog.Start(t)
	f := NewFilter()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.Allow("https://a.example")
		}()
		go func() {
			defer wg.Done()
			_ = f.Check("https://a.example")
		}()
	}
	wg.Wait()
	if len(f.Origins()) != 8 {
		t.Fatalf("expected 8 entries, got %d", len(f.Origins()))
	}
}
