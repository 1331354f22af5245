package cli

import (
	"io"
	"os"
	"path"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/matzehuels/phpup/pkg/acquire"
)

// barProgress renders one download as a terminal progress bar. The acquirer
// calls Add from several chunk workers at once.
type barProgress struct {
	w io.Writer

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func (p *barProgress) Start(url string, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(path.Base(url)),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *barProgress) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Add(n)
	}
}

func (p *barProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}

// progressFunc returns nil when bars are disabled; the acquirer then reports
// nothing.
func (c *CLI) progressFunc() acquire.ProgressFunc {
	if c.noProgress {
		return nil
	}
	return func() acquire.Progress { return &barProgress{w: os.Stderr} }
}
