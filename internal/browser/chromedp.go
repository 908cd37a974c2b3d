package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/julianbeese/tennis_bot/internal/antidetect"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

// ChromedpLauncher drives a local Chrome through the devtools protocol
type ChromedpLauncher struct {
	opts Options
}

// NewChromedpLauncher creates a chromedp based launcher
func NewChromedpLauncher(opts Options) *ChromedpLauncher {
	return &ChromedpLauncher{opts: opts}
}

// Launch starts Chrome with a fresh profile and opens one tab
func (l *ChromedpLauncher) Launch(ctx context.Context) (Session, error) {
	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if l.opts.Agents != nil {
		execOpts = append(execOpts, chromedp.UserAgent(l.opts.Agents.Next()))
	}
	if l.opts.ChromePath != "" {
		execOpts = append(execOpts, chromedp.ExecPath(l.opts.ChromePath))
	}

	// The browser lives as long as the session, not the launch call
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), execOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &chromedpSession{allocCancel: allocCancel, tabCancel: tabCancel, tab: tabCtx}

	// First Run starts the browser process
	if err := s.run(ctx, chromedp.Navigate("about:blank")); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: start chrome: %v", domain.ErrDriver, err)
	}

	s.page = &chromedpPage{session: s, behavior: l.opts.Behavior, settle: l.opts.SettleDelay}
	return s, nil
}

type chromedpSession struct {
	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	page        *chromedpPage
	closeOnce   sync.Once
}

func (s *chromedpSession) Page() Page { return s.page }

func (s *chromedpSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.tab)
		s.tabCancel()
		s.allocCancel()
	})
	return err
}

// run executes actions on the tab, bounded by the caller's ctx
func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tab)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// chromedpPage is the top document, or a frame when root is set
type chromedpPage struct {
	session  *chromedpSession
	root     *cdp.Node
	behavior *antidetect.HumanBehavior
	settle   time.Duration
}

func (p *chromedpPage) query(opts ...chromedp.QueryOption) []chromedp.QueryOption {
	opts = append(opts, chromedp.ByQuery)
	if p.root != nil {
		opts = append(opts, chromedp.FromNode(p.root))
	}
	return opts
}

func (p *chromedpPage) nodes(ctx context.Context, sel string) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if p.root != nil {
		opts = append(opts, chromedp.FromNode(p.root))
	}
	if err := p.session.run(ctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (p *chromedpPage) nth(ctx context.Context, sel string, n int) (*cdp.Node, error) {
	nodes, err := p.nodes(ctx, sel)
	if err != nil {
		return nil, err
	}
	if n < 0 || n >= len(nodes) {
		return nil, fmt.Errorf("%w: %s[%d] (have %d)", ErrNoElement, sel, n, len(nodes))
	}
	return nodes[n], nil
}

// call evaluates a DOM helper against node and decodes its result into out
func (p *chromedpPage) call(ctx context.Context, node *cdp.Node, decl string, out any) error {
	return p.session.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		res, exc, err := runtime.CallFunctionOn(decl).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		if out == nil || res == nil || len(res.Value) == 0 {
			return nil
		}
		return json.Unmarshal(res.Value, out)
	}))
}

func (p *chromedpPage) callFirst(ctx context.Context, sel, decl string, out any) error {
	node, err := p.nth(ctx, sel, 0)
	if err != nil {
		return err
	}
	return p.call(ctx, node, decl, out)
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	return wrap(ctx, "navigate", url, p.session.run(ctx, chromedp.Navigate(url)))
}

func (p *chromedpPage) WaitIdle(ctx context.Context) error {
	var complete bool
	err := p.session.run(ctx,
		chromedp.Poll(`document.readyState === "complete"`, &complete),
		chromedp.Sleep(p.settle),
	)
	return wrap(ctx, "wait idle", "", err)
}

func (p *chromedpPage) WaitVisible(ctx context.Context, sel string) error {
	return wrap(ctx, "wait visible", sel, p.session.run(ctx, chromedp.WaitVisible(sel, p.query()...)))
}

func (p *chromedpPage) WaitReady(ctx context.Context, sel string) error {
	return wrap(ctx, "wait ready", sel, p.session.run(ctx, chromedp.WaitReady(sel, p.query()...)))
}

func (p *chromedpPage) WaitHidden(ctx context.Context, sel string) error {
	return wrap(ctx, "wait hidden", sel, p.session.run(ctx, chromedp.WaitNotVisible(sel, p.query()...)))
}

func (p *chromedpPage) Count(ctx context.Context, sel string) (int, error) {
	nodes, err := p.nodes(ctx, sel)
	if err != nil {
		return 0, wrap(ctx, "count", sel, err)
	}
	return len(nodes), nil
}

func (p *chromedpPage) Visible(ctx context.Context, sel string) (bool, error) {
	nodes, err := p.nodes(ctx, sel)
	if err != nil {
		return false, wrap(ctx, "visible", sel, err)
	}
	if len(nodes) == 0 {
		return false, nil
	}
	var visible bool
	if err := p.call(ctx, nodes[0], jsVisible, &visible); err != nil {
		return false, wrap(ctx, "visible", sel, err)
	}
	return visible, nil
}

func (p *chromedpPage) Click(ctx context.Context, sel string) error {
	return wrap(ctx, "click", sel, p.session.run(ctx, chromedp.Click(sel, p.query()...)))
}

func (p *chromedpPage) ClickNth(ctx context.Context, sel string, n int) error {
	node, err := p.nth(ctx, sel, n)
	if err != nil {
		return wrap(ctx, "click", sel, err)
	}
	return wrap(ctx, "click", sel, p.session.run(ctx, chromedp.MouseClickNode(node)))
}

func (p *chromedpPage) Fill(ctx context.Context, sel, value string) error {
	if err := p.WaitVisible(ctx, sel); err != nil {
		return err
	}
	return p.FillNth(ctx, sel, 0, value)
}

func (p *chromedpPage) FillNth(ctx context.Context, sel string, n int, value string) error {
	node, err := p.nth(ctx, sel, n)
	if err != nil {
		return wrap(ctx, "fill", sel, err)
	}
	if err := p.call(ctx, node, jsClear, nil); err != nil {
		return wrap(ctx, "fill", sel, err)
	}

	if p.behavior.TypeChar() == 0 {
		return wrap(ctx, "fill", sel, p.session.run(ctx, chromedp.KeyEventNode(node, value)))
	}
	for _, r := range value {
		if err := p.session.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return wrap(ctx, "fill", sel, err)
		}
		if err := antidetect.Sleep(ctx, p.behavior.TypeChar()); err != nil {
			return wrap(ctx, "fill", sel, err)
		}
	}
	return nil
}

func (p *chromedpPage) Press(ctx context.Context, key string) error {
	keys := key
	if key == KeyEnter {
		keys = kb.Enter
	}
	return wrap(ctx, "press", key, p.session.run(ctx, chromedp.KeyEvent(keys)))
}

func (p *chromedpPage) Texts(ctx context.Context, sel string) ([]string, error) {
	nodes, err := p.nodes(ctx, sel)
	if err != nil {
		return nil, wrap(ctx, "texts", sel, err)
	}
	texts := make([]string, 0, len(nodes))
	for _, node := range nodes {
		var text string
		if err := p.call(ctx, node, jsText, &text); err != nil {
			return nil, wrap(ctx, "texts", sel, err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}

func (p *chromedpPage) Text(ctx context.Context, sel string) (string, error) {
	var text string
	return text, wrap(ctx, "text", sel, p.callFirst(ctx, sel, jsText, &text))
}

func (p *chromedpPage) Attributes(ctx context.Context, sel, name string) ([]string, error) {
	nodes, err := p.nodes(ctx, sel)
	if err != nil {
		return nil, wrap(ctx, "attributes", sel, err)
	}
	values := make([]string, 0, len(nodes))
	for _, node := range nodes {
		var v *string
		if err := p.call(ctx, node, jsAttribute(name), &v); err != nil {
			return nil, wrap(ctx, "attributes", sel, err)
		}
		if v != nil {
			values = append(values, *v)
		}
	}
	return values, nil
}

func (p *chromedpPage) AdjacentHTML(ctx context.Context, anchor, target string) (string, error) {
	var html *string
	if err := p.callFirst(ctx, anchor, jsAdjacent(target), &html); err != nil {
		return "", wrap(ctx, "adjacent", anchor, err)
	}
	if html == nil {
		return "", fmt.Errorf("adjacent %s: %w: %s", anchor, ErrNoElement, target)
	}
	return *html, nil
}

func (p *chromedpPage) Unlock(ctx context.Context, sel string) error {
	return wrap(ctx, "unlock", sel, p.callFirst(ctx, sel, jsUnlock, nil))
}

func (p *chromedpPage) RemoveClass(ctx context.Context, sel, class string) error {
	return wrap(ctx, "remove class", sel, p.callFirst(ctx, sel, jsRemoveClass(class), nil))
}

func (p *chromedpPage) Title(ctx context.Context) (string, error) {
	var title string
	return title, wrap(ctx, "title", "", p.session.run(ctx, chromedp.Title(&title)))
}

func (p *chromedpPage) Screenshot(ctx context.Context, sel string) ([]byte, error) {
	var buf []byte
	return buf, wrap(ctx, "screenshot", sel, p.session.run(ctx, chromedp.Screenshot(sel, &buf, p.query()...)))
}

func (p *chromedpPage) FullScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// Quality 100 keeps the capture as PNG
	return buf, wrap(ctx, "full screenshot", "", p.session.run(ctx, chromedp.FullScreenshot(&buf, 100)))
}

func (p *chromedpPage) Frame(ctx context.Context, sel string) (Page, error) {
	var nodes []*cdp.Node
	if err := p.session.run(ctx, chromedp.Nodes(sel, &nodes, p.query()...)); err != nil {
		return nil, wrap(ctx, "frame", sel, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("frame %s: %w", sel, ErrNoElement)
	}
	root, err := frameDocument(sel, nodes[0])
	if err != nil {
		return nil, err
	}
	return &chromedpPage{session: p.session, root: root, behavior: p.behavior, settle: p.settle}, nil
}

// frameDocument returns the document inside an iframe node
func frameDocument(sel string, node *cdp.Node) (*cdp.Node, error) {
	if node.ContentDocument == nil {
		return nil, fmt.Errorf("frame %s (%s): %w", sel, node.NodeName, ErrNoFrameDocument)
	}
	return node.ContentDocument, nil
}
