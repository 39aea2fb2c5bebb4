package session

import (
	"context"
	"errors"
	"sync"

	"github.com/chromedp/chromedp"
)

// Page is a browser tab opened by NewPage. Close it when done.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	id     string

	once     sync.Once
	closeErr error
}

// Context returns the chromedp context bound to this tab
func (p *Page) Context() context.Context {
	return p.ctx
}

// ID returns the DevTools target ID of the tab
func (p *Page) ID() string {
	return p.id
}

// Close closes the tab. Subsequent calls return the first result.
func (p *Page) Close() error {
	p.once.Do(func() {
		err := chromedp.Cancel(p.ctx)
		p.cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			p.closeErr = err
		}
	})
	return p.closeErr
}
