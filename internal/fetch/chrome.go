package fetch

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Chrome is an Engine backed by a fresh headless Chrome per Open call.
type Chrome struct {
	UserAgent string
	Headless  bool
}

func NewChrome(userAgent string, headless bool) *Chrome {
	return &Chrome{UserAgent: userAgent, Headless: headless}
}

func (c *Chrome) Open(ctx context.Context) (Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", c.Headless),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if c.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// The first Run launches the browser and opens the tab.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &chromePage{tabCtx: tabCtx, tabCancel: tabCancel, allocCancel: allocCancel}, nil
}

type chromePage struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

// run executes actions on the tab, stopping as soon as ctx is done.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *chromePage) Navigate(ctx context.Context, address string, wait WaitCondition) error {
	if wait == WaitCommitted {
		return p.run(ctx,
			chromedp.ActionFunc(func(ctx context.Context) error {
				var res page.NavigateReturns
				if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(address), &res); err != nil {
					return err
				}
				if res.ErrorText != "" {
					return fmt.Errorf("page load error %s", res.ErrorText)
				}
				return nil
			}),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
	}
	return p.run(ctx,
		chromedp.Navigate(address),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *chromePage) Scroll(ctx context.Context) error {
	return p.run(ctx, chromedp.Evaluate("window.scrollBy(0, 500)", nil))
}

func (p *chromePage) Text(ctx context.Context) (string, error) {
	var text string
	err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	return text, err
}

// Close shuts the tab and then the browser process.
func (p *chromePage) Close() error {
	p.tabCancel()
	p.allocCancel()
	return nil
}
