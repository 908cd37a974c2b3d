package booking

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/julianbeese/tennis_bot/internal/browser/browsertest"
	"github.com/julianbeese/tennis_bot/internal/config"
	"github.com/julianbeese/tennis_bot/internal/domain"
)

var testDay = time.Date(2026, 10, 22, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(locations config.Locations, hours ...string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Account = config.AccountConfig{Email: "player@example.com", Password: "pw"}
	cfg.Portal.BaseURL = "https://portal.test"
	cfg.Locations = locations
	cfg.Hours = hours
	cfg.PriceType = []string{"Tarif plein"}
	cfg.CourtType = []string{"Couvert"}
	cfg.Players = []domain.Participant{
		{LastName: "Moerke", FirstName: "Oscar"},
		{LastName: "Grabowski", FirstName: "Bean"},
	}
	cfg.Browser.SettleDelay = 0
	cfg.Captcha.RefreshDelay = 0
	cfg.Captcha.VerifyDelay = 0
	cfg.Retry.Backoff = 0
	return cfg
}

// fakeSlot is one bookable cell on the results view
type fakeSlot struct {
	courtID     string
	court       int
	description string // "priceType<br>courtType"; empty means unreadable
}

// portal scripts a browsertest.Page that behaves like the booking site
type portal struct {
	// slots[location][hour]
	slots     map[string]map[string][]fakeSlot
	collapsed map[string]bool // hour -> panel starts collapsed
	badLogin  bool
	captcha   *fakeCaptcha
	// suggestions override the suggestion list; nil lists every location
	suggestions []string
	// noPrimaryDate hides the DD/MM/YYYY cell
	noPrimaryDate bool
	wrongTitle    bool

	mu       sync.Mutex
	searched []string
	clicked  []string // book buttons clicked
	current  string
}

func newPortal() *portal {
	return &portal{
		slots:     map[string]map[string][]fakeSlot{},
		collapsed: map[string]bool{},
	}
}

func (f *portal) add(location, hour string, slots ...fakeSlot) *portal {
	if f.slots[location] == nil {
		f.slots[location] = map[string][]fakeSlot{}
	}
	f.slots[location][hour] = append(f.slots[location][hour], slots...)
	return f
}

func (f *portal) searchedLocations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searched...)
}

func (f *portal) bookedButtons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.clicked...)
}

func (f *portal) page() *browsertest.Page {
	p := browsertest.NewPage()
	p.OnNavigate(func(p *browsertest.Page, url string) {
		switch {
		case strings.HasSuffix(url, pathLogin):
			p.Show(selLoginEntry, "Se connecter").
				Show(selUsername, "").
				Show(selPassword, "").
				Show(selLoginSubmit, "Connexion")
		case strings.HasSuffix(url, pathSearch):
			f.openSearch(p)
		}
	})
	p.OnClick(selLoginSubmit, func(p *browsertest.Page, _ int) {
		if !f.badLogin {
			p.Show(selLoggedIn, "Bonjour")
		}
	})
	return p
}

func (f *portal) openSearch(p *browsertest.Page) {
	p.SetTitle("Paris | TENNIS - Recherche")
	p.Show(selWhereInput, "").Show(selWhen, "Quand").Show(selSearchButton, "Rechercher")
	p.Remove(selSuggestion)

	names := f.suggestions
	if names == nil {
		for name := range f.slots {
			names = append(names, name)
		}
	}
	var els []*browsertest.Element
	for _, n := range names {
		els = append(els, &browsertest.Element{Text: n})
	}
	p.Set(selSuggestion, els...)

	p.OnClick(selSuggestion, func(p *browsertest.Page, n int) {
		f.mu.Lock()
		f.current = names[n]
		f.mu.Unlock()
	})
	p.OnPress(func(p *browsertest.Page, key string) {
		if p.Get(selWhereInput) == nil {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.current == "" {
			f.current = strings.TrimSpace(p.Get(selWhereInput)[0].Attrs["value"])
		}
	})

	dates := dateSelectors(testDay)
	p.OnClick(selWhen, func(p *browsertest.Page, _ int) {
		if !f.noPrimaryDate {
			p.Show(dates[0], "22")
		}
		p.Show(dates[1], "22")
	})
	p.OnClick(selSearchButton, func(p *browsertest.Page, _ int) { f.showResults(p) })
}

func (f *portal) showResults(p *browsertest.Page) {
	f.mu.Lock()
	location := f.current
	f.searched = append(f.searched, location)
	f.current = ""
	f.mu.Unlock()

	for hour, slots := range f.slots[location] {
		sel := slotSelector(testDay, hour)
		var cells []*browsertest.Element
		for _, s := range slots {
			adjacent := map[string]string{selCourtLabel: fmt.Sprintf("Court N°%d", s.court)}
			if s.description != "" {
				adjacent[selPriceLabel] = s.description
			}
			cell := &browsertest.Element{
				Attrs:    map[string]string{attrCourtID: s.courtID},
				Hidden:   f.collapsed[hour],
				Adjacent: adjacent,
			}
			cells = append(cells, cell)
			button := bookButton(s.courtID, testDay, hour)
			p.Set(button, &browsertest.Element{Adjacent: adjacent})
			p.OnClick(button, func(p *browsertest.Page, _ int) {
				f.mu.Lock()
				f.clicked = append(f.clicked, button)
				f.mu.Unlock()
				f.openReservation(p)
			})
		}
		p.Set(sel, cells...)
		p.OnClick(panelTitle(location, hour), func(p *browsertest.Page, _ int) {
			for _, c := range p.Get(sel) {
				c.Hidden = false
			}
		})
		if f.collapsed[hour] {
			p.Show(panelTitle(location, hour), hour+"h")
		}
	}
}

func (f *portal) openReservation(p *browsertest.Page) {
	if f.wrongTitle {
		p.SetTitle("Paris | TENNIS - Erreur")
		return
	}
	p.SetTitle(reservationTitle)
	if f.captcha != nil {
		p.Show(selCaptchaMarker, "")
		p.SetFrame(selCaptchaFrame, f.captcha.frame())
	}

	p.Set(playerFields(0), &browsertest.Element{}, &browsertest.Element{})
	added := 0
	p.Show(selAddPlayer, "Ajouter")
	p.OnClick(selAddPlayer, func(p *browsertest.Page, _ int) {
		added++
		p.Set(playerFields(added), &browsertest.Element{}, &browsertest.Element{})
	})
	p.Set(selPaymentMode, &browsertest.Element{Hidden: true})
	p.Show(selPrevious, "Précédent")
	p.OnClick(selPrevious, func(p *browsertest.Page, _ int) { p.Show(selCancel, "Annuler") })
	p.Set(selSubmit, &browsertest.Element{Hidden: true})
	p.OnClick(selSubmit, func(p *browsertest.Page, _ int) {
		p.Show(selConfirmation, "")
		p.Show(selAddress, "  Centre sportif   Poliveau\n  39 rue Poliveau ")
		p.Show(selDate, "le jeudi 22 octobre 2026   de 18h00 à 19h00")
		p.Show(selCourt, " Court N°5 ")
	})
}

// fakeCaptcha accepts the answer once the challenge was shown acceptAfter times
type fakeCaptcha struct {
	acceptAfter int // zero never accepts
	mu          sync.Mutex
	shown       int
}

func (c *fakeCaptcha) frame() *browsertest.Page {
	fr := browsertest.NewPage()
	fr.Show(selCaptchaImage, "").Show(selCaptchaAnswer, "").Show(selCaptchaValidate, "Valider")
	fr.Show(selCaptchaNote, "")
	fr.OnClick(selCaptchaValidate, func(fr *browsertest.Page, _ int) {
		c.mu.Lock()
		c.shown++
		ok := c.acceptAfter > 0 && c.shown >= c.acceptAfter
		c.mu.Unlock()
		if ok {
			fr.Show(selCaptchaNote, captchaVerified)
		} else {
			fr.Show(selCaptchaNote, "Réponse incorrecte")
		}
	})
	return fr
}

// countingSolver returns a fixed answer and counts calls
type countingSolver struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *countingSolver) Solve(ctx context.Context, image []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "AB12CD", nil
}

func (s *countingSolver) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// loggedIn returns a page positioned after a successful login
func loggedIn(t *testing.T, f *portal, cfg *config.Config) *browsertest.Page {
	t.Helper()
	p := f.page()
	auth := NewAuthenticator(cfg, nil, discardLogger())
	if err := auth.Login(context.Background(), p); err != nil {
		t.Fatalf("Login: %v", err)
	}
	return p
}

func loc(name string, courts ...int) domain.Location {
	return domain.Location{Name: name, Courts: courts}
}
