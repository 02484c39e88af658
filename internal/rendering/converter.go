package rendering

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Document extensions
const (
	PDFExt  = ".pdf"
	HTMLExt = ".html"
)

// DefaultConvertTimeout bounds a single HTML to PDF conversion.
const DefaultConvertTimeout = 30 * time.Second

// Converter turns a complete HTML document into output document bytes.
type Converter interface {
	HTMLToDocument(ctx context.Context, html string) ([]byte, error)
	Extension() string
}

// Convert runs conv, reporting a missing converter as ErrConverterUnavailable.
func Convert(ctx context.Context, conv Converter, html string) ([]byte, error) {
	if conv == nil {
		return nil, &RenderError{Message: "cannot convert document", Cause: ErrConverterUnavailable}
	}
	data, err := conv.HTMLToDocument(ctx, html)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &RenderError{Message: "converter returned an empty document"}
	}
	return data, nil
}

// HTMLConverter returns the HTML unchanged. It is used when no browser is
// available and in tests.
type HTMLConverter struct{}

// HTMLToDocument returns html as bytes.
func (HTMLConverter) HTMLToDocument(_ context.Context, html string) ([]byte, error) {
	return []byte(html), nil
}

// Extension reports ".html".
func (HTMLConverter) Extension() string { return HTMLExt }

// PaperSize is a page size in inches.
type PaperSize struct {
	Width  float64
	Height float64
}

// Letter is US letter paper.
var Letter = PaperSize{Width: 8.5, Height: 11}

// ChromeConverter prints HTML to PDF in a shared headless Chrome instance.
// Each conversion runs in its own tab so conversions may run concurrently.
// Requires Chrome/Chromium to be installed on the system.
type ChromeConverter struct {
	Timeout time.Duration
	Paper   PaperSize
	Margin  float64
	Verbose bool

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChromeConverter creates a converter with letter paper and half-inch margins.
// The browser is started lazily on first use.
func NewChromeConverter(timeout time.Duration, verbose bool) *ChromeConverter {
	if timeout <= 0 {
		timeout = DefaultConvertTimeout
	}
	return &ChromeConverter{
		Timeout: timeout,
		Paper:   Letter,
		Margin:  0.5,
		Verbose: verbose,
	}
}

// Extension reports ".pdf".
func (c *ChromeConverter) Extension() string { return PDFExt }

// HTMLToDocument loads html into a blank tab and prints it to PDF.
func (c *ChromeConverter) HTMLToDocument(ctx context.Context, html string) ([]byte, error) {
	browserCtx, err := c.browser()
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.Timeout)
	defer cancelTimeout()

	// Stop the tab when the caller gives up
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var pdf []byte
	err = chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(c.Paper.Width).
				WithPaperHeight(c.Paper.Height).
				WithMarginTop(c.Margin).
				WithMarginBottom(c.Margin).
				WithMarginLeft(c.Margin).
				WithMarginRight(c.Margin).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, &RenderError{Message: "failed to print PDF", Cause: err}
	}

	if c.Verbose {
		log.Printf("[RENDER] Printed PDF: %d bytes", len(pdf))
	}
	return pdf, nil
}

// browser starts the shared browser once.
func (c *ChromeConverter) browser() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browserCtx != nil {
		return c.browserCtx, nil
	}

	if c.Verbose {
		log.Printf("[RENDER] Starting headless browser")
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(),
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run with no actions starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, &RenderError{Message: "failed to start headless browser", Cause: fmt.Errorf("chromedp: %w", err)}
	}

	c.allocCancel = allocCancel
	c.browserCtx, c.browserCancel = browserCtx, browserCancel
	return browserCtx, nil
}

// Close shuts the browser down. The converter can be reused afterwards.
func (c *ChromeConverter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	c.allocCancel = nil
	c.browserCtx, c.browserCancel = nil, nil
}
