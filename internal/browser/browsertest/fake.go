// Package browsertest provides an in-memory browser.Page for exercising
// page-driving code without Chrome.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/julianbeese/tennis_bot/internal/browser"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

// Element is the state of one fake DOM node
type Element struct {
	Text   string
	Attrs  map[string]string
	Hidden bool
	// Adjacent maps a target selector to the inner HTML AdjacentHTML returns
	Adjacent map[string]string
}

// FillCall records one Fill or FillNth
type FillCall struct {
	Selector string
	Index    int
	Value    string
}

// Page is a scriptable browser.Page. Selectors are matched literally.
type Page struct {
	mu       sync.Mutex
	elements map[string][]*Element
	frames   map[string]*Page
	onClick  map[string]func(p *Page, n int)
	onPress  func(p *Page, key string)
	onNav    func(p *Page, url string)
	errs     map[string]error
	navErr   error
	title    string
	shot     []byte

	navigations []string
	clicks      []string
	presses     []string
	fills       []FillCall
	unlocked    []string
	classes     []string
}

// NewPage returns an empty page
func NewPage() *Page {
	return &Page{
		elements: make(map[string][]*Element),
		frames:   make(map[string]*Page),
		onClick:  make(map[string]func(p *Page, n int)),
		errs:     make(map[string]error),
		shot:     []byte("\x89PNG fake"),
	}
}

// Set replaces the elements matched by sel
func (p *Page) Set(sel string, els ...*Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(els) == 0 {
		delete(p.elements, sel)
	} else {
		p.elements[sel] = els
	}
	return p
}

// Show adds one visible element with the given text
func (p *Page) Show(sel, text string) *Page {
	return p.Set(sel, &Element{Text: text})
}

// Remove detaches every element matched by sel
func (p *Page) Remove(sel string) *Page {
	return p.Set(sel)
}

// Get returns the elements currently matched by sel
func (p *Page) Get(sel string) []*Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elements[sel]
}

// SetTitle sets the document title
func (p *Page) SetTitle(title string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
	return p
}

// SetFrame attaches a child document under sel
func (p *Page) SetFrame(sel string, frame *Page) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames[sel] = frame
	if _, ok := p.elements[sel]; !ok {
		p.elements[sel] = []*Element{{}}
	}
	return p
}

// Fail makes every operation on sel return err. An empty sel fails FullScreenshot.
func (p *Page) Fail(sel string, err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[sel] = err
	return p
}

// FailNavigation makes every Navigate return err
func (p *Page) FailNavigation(err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navErr = err
	return p
}

// OnClick runs fn after a click on the n-th match of sel
func (p *Page) OnClick(sel string, fn func(p *Page, n int)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[sel] = fn
	return p
}

// OnPress runs fn after a key press
func (p *Page) OnPress(fn func(p *Page, key string)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPress = fn
	return p
}

// OnNavigate runs fn after each navigation
func (p *Page) OnNavigate(fn func(p *Page, url string)) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNav = fn
	return p
}

// Navigations returns visited URLs in order
func (p *Page) Navigations() []string { return p.snapshot(&p.navigations) }

// Clicks returns clicked selectors in order
func (p *Page) Clicks() []string { return p.snapshot(&p.clicks) }

// Presses returns pressed keys in order
func (p *Page) Presses() []string { return p.snapshot(&p.presses) }

// Unlocked returns selectors passed to Unlock
func (p *Page) Unlocked() []string { return p.snapshot(&p.unlocked) }

// Fills returns recorded fills in order
func (p *Page) Fills() []FillCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]FillCall(nil), p.fills...)
}

// Clicked reports whether sel was clicked at least once
func (p *Page) Clicked(sel string) bool {
	for _, c := range p.Clicks() {
		if c == sel {
			return true
		}
	}
	return false
}

func (p *Page) snapshot(s *[]string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), (*s)...)
}

func (p *Page) lookup(sel string) ([]*Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.errs[sel]; err != nil {
		return nil, err
	}
	return p.elements[sel], nil
}

func (p *Page) first(sel string) (*Element, error) {
	els, err := p.lookup(sel)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNoElement, sel)
	}
	return els[0], nil
}

func timeout(op, sel string) error {
	return fmt.Errorf("%s %s: %w", op, sel, domain.ErrNavigationTimeout)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.navErr != nil {
		defer p.mu.Unlock()
		return p.navErr
	}
	p.navigations = append(p.navigations, url)
	fn := p.onNav
	p.mu.Unlock()
	if fn != nil {
		fn(p, url)
	}
	return nil
}

func (p *Page) WaitIdle(ctx context.Context) error { return ctx.Err() }

func (p *Page) WaitVisible(ctx context.Context, sel string) error {
	els, err := p.lookup(sel)
	if err != nil {
		return err
	}
	for _, el := range els {
		if !el.Hidden {
			return nil
		}
	}
	return timeout("wait visible", sel)
}

func (p *Page) WaitReady(ctx context.Context, sel string) error {
	els, err := p.lookup(sel)
	if err != nil {
		return err
	}
	if len(els) == 0 {
		return timeout("wait ready", sel)
	}
	return nil
}

func (p *Page) WaitHidden(ctx context.Context, sel string) error {
	els, err := p.lookup(sel)
	if err != nil {
		return err
	}
	for _, el := range els {
		if !el.Hidden {
			return timeout("wait hidden", sel)
		}
	}
	return nil
}

func (p *Page) Count(ctx context.Context, sel string) (int, error) {
	els, err := p.lookup(sel)
	return len(els), err
}

func (p *Page) Visible(ctx context.Context, sel string) (bool, error) {
	els, err := p.lookup(sel)
	if err != nil || len(els) == 0 {
		return false, err
	}
	return !els[0].Hidden, nil
}

func (p *Page) Click(ctx context.Context, sel string) error {
	if err := p.WaitVisible(ctx, sel); err != nil {
		return err
	}
	return p.click(sel, 0)
}

func (p *Page) ClickNth(ctx context.Context, sel string, n int) error {
	els, err := p.lookup(sel)
	if err != nil {
		return err
	}
	if n < 0 || n >= len(els) {
		return fmt.Errorf("%w: %s[%d]", browser.ErrNoElement, sel, n)
	}
	return p.click(sel, n)
}

func (p *Page) click(sel string, n int) error {
	p.mu.Lock()
	p.clicks = append(p.clicks, sel)
	fn := p.onClick[sel]
	p.mu.Unlock()
	if fn != nil {
		fn(p, n)
	}
	return nil
}

func (p *Page) Fill(ctx context.Context, sel, value string) error {
	if err := p.WaitVisible(ctx, sel); err != nil {
		return err
	}
	return p.FillNth(ctx, sel, 0, value)
}

func (p *Page) FillNth(ctx context.Context, sel string, n int, value string) error {
	els, err := p.lookup(sel)
	if err != nil {
		return err
	}
	if n < 0 || n >= len(els) {
		return fmt.Errorf("%w: %s[%d]", browser.ErrNoElement, sel, n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if els[n].Attrs == nil {
		els[n].Attrs = map[string]string{}
	}
	els[n].Attrs["value"] = value
	p.fills = append(p.fills, FillCall{Selector: sel, Index: n, Value: value})
	return nil
}

func (p *Page) Press(ctx context.Context, key string) error {
	p.mu.Lock()
	p.presses = append(p.presses, key)
	fn := p.onPress
	p.mu.Unlock()
	if fn != nil {
		fn(p, key)
	}
	return nil
}

func (p *Page) Texts(ctx context.Context, sel string) ([]string, error) {
	els, err := p.lookup(sel)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		texts = append(texts, el.Text)
	}
	return texts, nil
}

func (p *Page) Text(ctx context.Context, sel string) (string, error) {
	el, err := p.first(sel)
	if err != nil {
		return "", err
	}
	return el.Text, nil
}


func (p *Page) Attributes(ctx context.Context, sel, name string) ([]string, error) {
	els, err := p.lookup(sel)
	if err != nil {
		return nil, err
	}
	var values []string
	for _, el := range els {
		if v, ok := el.Attrs[name]; ok {
			values = append(values, v)
		}
	}
	return values, nil
}

func (p *Page) AdjacentHTML(ctx context.Context, anchor, target string) (string, error) {
	el, err := p.first(anchor)
	if err != nil {
		return "", err
	}
	html, ok := el.Adjacent[target]
	if !ok {
		return "", fmt.Errorf("adjacent %s: %w: %s", anchor, browser.ErrNoElement, target)
	}
	return html, nil
}

func (p *Page) Unlock(ctx context.Context, sel string) error {
	el, err := p.first(sel)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	el.Hidden = false
	p.unlocked = append(p.unlocked, sel)
	return nil
}

func (p *Page) RemoveClass(ctx context.Context, sel, class string) error {
	el, err := p.first(sel)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if class == "hide" {
		el.Hidden = false
	}
	p.classes = append(p.classes, sel+"."+class)
	return nil
}

func (p *Page) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *Page) Screenshot(ctx context.Context, sel string) ([]byte, error) {
	if _, err := p.first(sel); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.shot...), nil
}

func (p *Page) FullScreenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.errs[""]; err != nil {
		return nil, err
	}
	return append([]byte(nil), p.shot...), nil
}

func (p *Page) Frame(ctx context.Context, sel string) (browser.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.errs[sel]; err != nil {
		return nil, err
	}
	frame, ok := p.frames[sel]
	if !ok {
		return nil, fmt.Errorf("frame %s: %w", sel, browser.ErrNoElement)
	}
	return frame, nil
}

// Launcher hands out fake sessions and counts their lifecycle
type Launcher struct {
	mu sync.Mutex
	// NewPage builds the page for the n-th launch, starting at zero
	NewPage func(n int) *Page
	// Err, when set, fails every launch
	Err error

	launches int
	closed   int
	pages    []*Page
}

// Launch returns a session over a fresh page
func (l *Launcher) Launch(ctx context.Context) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	if l.NewPage == nil {
		return nil, errors.New("browsertest: Launcher.NewPage not set")
	}
	page := l.NewPage(l.launches)
	l.launches++
	l.pages = append(l.pages, page)
	return &session{page: page, launcher: l}, nil
}

// Launches returns how many sessions were started
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// Closed returns how many sessions were released
func (l *Launcher) Closed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Pages returns every page handed out, in launch order
func (l *Launcher) Pages() []*Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Page(nil), l.pages...)
}

type session struct {
	page     *Page
	launcher *Launcher
	once     sync.Once
}

func (s *session) Page() browser.Page { return s.page }

func (s *session) Close() error {
	s.once.Do(func() {
		s.launcher.mu.Lock()
		s.launcher.closed++
		s.launcher.mu.Unlock()
	})
	return nil
}
