package cli

import (
	"bytes"
	"sync"
	"testing"
)

func TestBarProgress(t *testing.T) {
	var out bytes.Buffer
	p := &barProgress{w: &out}

	// Add before Start is ignored.
	p.Add(10)

	p.Start("https://www.php.net/distributions/php-8.2.10.tar.gz", 4096)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Add(512)
		}()
	}
	wg.Wait()
	p.Finish()
	p.Finish()

	if p.bar != nil {
		t.Error("Finish() should release the bar")
	}
}

func TestProgressFuncDisabled(t *testing.T) {
	c := New(&bytes.Buffer{}, LogInfo)
	c.noProgress = true
	if c.progressFunc() != nil {
		t.Error("progressFunc() should be nil with --no-progress")
	}

	c.noProgress = false
	if c.progressFunc() == nil {
		t.Fatal("progressFunc() should create bars by default")
	}
}
