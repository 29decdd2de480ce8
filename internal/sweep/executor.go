// File: internal/sweep/executor.go
package sweep

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// Executor defines the contract for the browser interactions the sweep loop
// needs, allowing the loop to run against a mock in tests. This interface is
// the cornerstone of the module's testability strategy.
type Executor interface {
	// Count returns how many elements currently match the CSS selector.
	Count(ctx context.Context, selector string) (int, error)

	// ClickAll clicks every element matching the CSS selector and reports
	// how many clicks succeeded and how many failed. Individual failures do
	// not abort the batch; a non-nil error is returned only when the match
	// itself could not be performed.
	ClickAll(ctx context.Context, selector string) (clicked, failed int, err error)

	// Click clicks the first element matching the CSS selector.
	Click(ctx context.Context, selector string) error

	// CountText returns how many elements of the given name carry exactly
	// the given visible text (whitespace-normalized).
	CountText(ctx context.Context, scope, text string) (int, error)

	// ClickText clicks the first element of the given name carrying exactly
	// the given visible text.
	ClickText(ctx context.Context, scope, text string) error

	// Sleep pauses for d, honoring context cancellation.
	Sleep(ctx context.Context, d time.Duration) error
}

// CDPExecutor is the production implementation of Executor. It wraps
// chromedp calls against a live browser context.
type CDPExecutor struct{}

// NewCDPExecutor creates a production-ready executor.
func NewCDPExecutor() *CDPExecutor {
	return &CDPExecutor{}
}

var _ Executor = (*CDPExecutor)(nil)

func (e *CDPExecutor) Count(ctx context.Context, selector string) (int, error) {
	var n int
	expr := fmt.Sprintf(`document.querySelectorAll(%q).length`, selector)
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &n)); err != nil {
		return 0, fmt.Errorf("counting %q: %w", selector, err)
	}
	return n, nil
}

func (e *CDPExecutor) ClickAll(ctx context.Context, selector string) (int, int, error) {
	var nodes []*cdp.Node
	// AtLeast(0) keeps Nodes from blocking when nothing matches; the caller
	// has already waited for the controls to appear.
	err := chromedp.Run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return 0, 0, fmt.Errorf("resolving %q: %w", selector, err)
	}

	clicked, failed := 0, 0
	for _, node := range nodes {
		if err := chromedp.Run(ctx, chromedp.MouseClickNode(node)); err != nil {
			// The page may re-render mid-batch and orphan individual nodes.
			failed++
			continue
		}
		clicked++
	}
	return clicked, failed, nil
}

func (e *CDPExecutor) Click(ctx context.Context, selector string) error {
	return chromedp.Run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (e *CDPExecutor) CountText(ctx context.Context, scope, text string) (int, error) {
	xp := fmt.Sprintf(`count(//%s[normalize-space(.)=%s])`, scope, xpathLiteral(text))
	expr := fmt.Sprintf(`document.evaluate(%q, document, null, XPathResult.NUMBER_TYPE, null).numberValue`, xp)

	var n float64
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &n)); err != nil {
		return 0, fmt.Errorf("counting %s with text %q: %w", scope, text, err)
	}
	return int(n), nil
}

func (e *CDPExecutor) ClickText(ctx context.Context, scope, text string) error {
	xp := fmt.Sprintf(`(//%s[normalize-space(.)=%s])[1]`, scope, xpathLiteral(text))
	return chromedp.Run(ctx, chromedp.Click(xp, chromedp.BySearch))
}

func (e *CDPExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return chromedp.Run(ctx, chromedp.Sleep(d))
}

// xpathLiteral renders s as an XPath 1.0 string literal. XPath 1.0 has no
// escaping, so strings containing both quote kinds need concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
