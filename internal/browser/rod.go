package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/julianbeese/tennis_bot/internal/antidetect"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

// RodLauncher drives Chrome through go-rod with the stealth page patches applied
type RodLauncher struct {
	opts Options
}

// NewRodLauncher creates a rod based launcher
func NewRodLauncher(opts Options) *RodLauncher {
	return &RodLauncher{opts: opts}
}

// Launch starts Chrome and opens one stealth page
func (l *RodLauncher) Launch(ctx context.Context) (Session, error) {
	// Leakless deadlocks on Windows, see go-rod/rod#853
	lc := launcher.New().
		Leakless(runtime.GOOS != "windows").
		Headless(l.opts.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled")

	if l.opts.ChromePath != "" {
		lc = lc.Bin(l.opts.ChromePath)
	} else if path, ok := launcher.LookPath(); ok {
		lc = lc.Bin(path)
	}

	controlURL, err := lc.Launch()
	if err != nil {
		lc.Cleanup()
		return nil, fmt.Errorf("%w: launch chrome: %v", domain.ErrDriver, err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		lc.Kill()
		lc.Cleanup()
		return nil, fmt.Errorf("%w: connect: %v", domain.ErrDriver, err)
	}
	s := &rodSession{browser: b, launcher: lc}

	page, err := stealth.Page(b)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: stealth page: %v", domain.ErrDriver, err)
	}
	if l.opts.Agents != nil {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: l.opts.Agents.Next()}); err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: set user agent: %v", domain.ErrDriver, err)
		}
	}

	s.page = &rodPage{page: page, behavior: l.opts.Behavior, settle: l.opts.SettleDelay}
	return s, nil
}

type rodSession struct {
	browser   *rod.Browser
	launcher  *launcher.Launcher
	page      *rodPage
	closeOnce sync.Once
}

func (s *rodSession) Page() Page { return s.page }

func (s *rodSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.browser.Close()
		s.launcher.Kill()
		s.launcher.Cleanup()
	})
	return err
}

type rodPage struct {
	page     *rod.Page
	behavior *antidetect.HumanBehavior
	settle   time.Duration
}

func (p *rodPage) with(ctx context.Context) *rod.Page {
	return p.page.Context(ctx)
}

func (p *rodPage) element(ctx context.Context, sel string) (*rod.Element, error) {
	has, el, err := p.with(ctx).Has(sel)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrNoElement, sel)
	}
	return el, nil
}

func (p *rodPage) nth(ctx context.Context, sel string, n int) (*rod.Element, error) {
	els, err := p.with(ctx).Elements(sel)
	if err != nil {
		return nil, err
	}
	if n < 0 || n >= len(els) {
		return nil, fmt.Errorf("%w: %s[%d] (have %d)", ErrNoElement, sel, n, len(els))
	}
	return els[n].Context(ctx), nil
}

// eval runs a DOM helper with el bound to this and decodes the result into out
func eval(el *rod.Element, decl string, out any) error {
	res, err := el.Eval(decl)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(res.Value.JSON("", "")), out)
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg := p.with(ctx)
	if err := pg.Navigate(url); err != nil {
		return wrap(ctx, "navigate", url, err)
	}
	return wrap(ctx, "navigate", url, pg.WaitLoad())
}

func (p *rodPage) WaitIdle(ctx context.Context) error {
	pg := p.with(ctx)
	if err := pg.WaitLoad(); err != nil {
		return wrap(ctx, "wait idle", "", err)
	}
	if p.settle > 0 {
		return wrap(ctx, "wait idle", "", pg.WaitIdle(p.settle))
	}
	return nil
}

func (p *rodPage) WaitVisible(ctx context.Context, sel string) error {
	el, err := p.with(ctx).Element(sel)
	if err != nil {
		return wrap(ctx, "wait visible", sel, err)
	}
	return wrap(ctx, "wait visible", sel, el.WaitVisible())
}

func (p *rodPage) WaitReady(ctx context.Context, sel string) error {
	_, err := p.with(ctx).Element(sel)
	return wrap(ctx, "wait ready", sel, err)
}

func (p *rodPage) WaitHidden(ctx context.Context, sel string) error {
	has, el, err := p.with(ctx).Has(sel)
	if err != nil {
		return wrap(ctx, "wait hidden", sel, err)
	}
	if !has {
		return nil
	}
	return wrap(ctx, "wait hidden", sel, el.WaitInvisible())
}

func (p *rodPage) Count(ctx context.Context, sel string) (int, error) {
	els, err := p.with(ctx).Elements(sel)
	if err != nil {
		return 0, wrap(ctx, "count", sel, err)
	}
	return len(els), nil
}

func (p *rodPage) Visible(ctx context.Context, sel string) (bool, error) {
	has, el, err := p.with(ctx).Has(sel)
	if err != nil || !has {
		return false, wrap(ctx, "visible", sel, err)
	}
	var visible bool
	if err := eval(el, jsVisible, &visible); err != nil {
		return false, wrap(ctx, "visible", sel, err)
	}
	return visible, nil
}

func (p *rodPage) Click(ctx context.Context, sel string) error {
	el, err := p.with(ctx).Element(sel)
	if err != nil {
		return wrap(ctx, "click", sel, err)
	}
	if err := el.WaitVisible(); err != nil {
		return wrap(ctx, "click", sel, err)
	}
	return wrap(ctx, "click", sel, el.Click(proto.InputMouseButtonLeft, 1))
}

func (p *rodPage) ClickNth(ctx context.Context, sel string, n int) error {
	el, err := p.nth(ctx, sel, n)
	if err != nil {
		return wrap(ctx, "click", sel, err)
	}
	return wrap(ctx, "click", sel, el.Click(proto.InputMouseButtonLeft, 1))
}

func (p *rodPage) Fill(ctx context.Context, sel, value string) error {
	if err := p.WaitVisible(ctx, sel); err != nil {
		return err
	}
	return p.FillNth(ctx, sel, 0, value)
}

func (p *rodPage) FillNth(ctx context.Context, sel string, n int, value string) error {
	el, err := p.nth(ctx, sel, n)
	if err != nil {
		return wrap(ctx, "fill", sel, err)
	}
	if err := eval(el, jsClear, nil); err != nil {
		return wrap(ctx, "fill", sel, err)
	}
	if p.behavior.TypeChar() == 0 {
		return wrap(ctx, "fill", sel, el.Input(value))
	}
	for _, r := range value {
		if err := el.Input(string(r)); err != nil {
			return wrap(ctx, "fill", sel, err)
		}
		if err := antidetect.Sleep(ctx, p.behavior.TypeChar()); err != nil {
			return wrap(ctx, "fill", sel, err)
		}
	}
	return nil
}

func (p *rodPage) Press(ctx context.Context, key string) error {
	if key != KeyEnter {
		return fmt.Errorf("press %s: unsupported key", key)
	}
	return wrap(ctx, "press", key, p.with(ctx).Keyboard.Press(input.Enter))
}

func (p *rodPage) Texts(ctx context.Context, sel string) ([]string, error) {
	els, err := p.with(ctx).Elements(sel)
	if err != nil {
		return nil, wrap(ctx, "texts", sel, err)
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		var text string
		if err := eval(el, jsText, &text); err != nil {
			return nil, wrap(ctx, "texts", sel, err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}

func (p *rodPage) Text(ctx context.Context, sel string) (string, error) {
	el, err := p.element(ctx, sel)
	if err != nil {
		return "", wrap(ctx, "text", sel, err)
	}
	var text string
	return text, wrap(ctx, "text", sel, eval(el, jsText, &text))
}

func (p *rodPage) Attributes(ctx context.Context, sel, name string) ([]string, error) {
	els, err := p.with(ctx).Elements(sel)
	if err != nil {
		return nil, wrap(ctx, "attributes", sel, err)
	}
	values := make([]string, 0, len(els))
	for _, el := range els {
		v, err := el.Attribute(name)
		if err != nil {
			return nil, wrap(ctx, "attributes", sel, err)
		}
		if v != nil {
			values = append(values, *v)
		}
	}
	return values, nil
}

func (p *rodPage) AdjacentHTML(ctx context.Context, anchor, target string) (string, error) {
	el, err := p.element(ctx, anchor)
	if err != nil {
		return "", wrap(ctx, "adjacent", anchor, err)
	}
	var html *string
	if err := eval(el, jsAdjacent(target), &html); err != nil {
		return "", wrap(ctx, "adjacent", anchor, err)
	}
	if html == nil {
		return "", fmt.Errorf("adjacent %s: %w: %s", anchor, ErrNoElement, target)
	}
	return *html, nil
}

func (p *rodPage) Unlock(ctx context.Context, sel string) error {
	el, err := p.element(ctx, sel)
	if err != nil {
		return wrap(ctx, "unlock", sel, err)
	}
	return wrap(ctx, "unlock", sel, eval(el, jsUnlock, nil))
}

func (p *rodPage) RemoveClass(ctx context.Context, sel, class string) error {
	el, err := p.element(ctx, sel)
	if err != nil {
		return wrap(ctx, "remove class", sel, err)
	}
	return wrap(ctx, "remove class", sel, eval(el, jsRemoveClass(class), nil))
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	info, err := p.with(ctx).Info()
	if err != nil {
		return "", wrap(ctx, "title", "", err)
	}
	return info.Title, nil
}

func (p *rodPage) Screenshot(ctx context.Context, sel string) ([]byte, error) {
	el, err := p.with(ctx).Element(sel)
	if err != nil {
		return nil, wrap(ctx, "screenshot", sel, err)
	}
	buf, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	return buf, wrap(ctx, "screenshot", sel, err)
}

func (p *rodPage) FullScreenshot(ctx context.Context) ([]byte, error) {
	buf, err := p.with(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	return buf, wrap(ctx, "full screenshot", "", err)
}

func (p *rodPage) Frame(ctx context.Context, sel string) (Page, error) {
	el, err := p.with(ctx).Element(sel)
	if err != nil {
		return nil, wrap(ctx, "frame", sel, err)
	}
	frame, err := el.Frame()
	if err != nil {
		return nil, wrap(ctx, "frame", sel, err)
	}
	return &rodPage{page: frame, behavior: p.behavior, settle: p.settle}, nil
}
