package booking

import (
	"fmt"
	"strings"
	"time"
)

// Portal paths, relative to the configured base URL
const (
	pathLogin  = "/tennis/jsp/site/Portal.jsp?page=tennis&view=start&full=1"
	pathSearch = "/tennis/jsp/site/Portal.jsp?page=recherche&view=recherche_creneau#!"
)

// Login
const (
	selLoginEntry  = "#button_suivi_inscription"
	selUsername    = "#username"
	selPassword    = "#password"
	selLoginSubmit = "#form-login button"
	selLoggedIn    = ".main-informations"
)

// Search view
const (
	selWhereInput   = ".tokens-input-text"
	selSuggestion   = ".tokens-suggestions-list-element"
	selWhen         = "#when"
	selDatePicker   = ".date-picker"
	selSearchButton = "#rechercher"
	selCourtLabel   = ".court"
	selPriceLabel   = ".price-description"

	attrCourtID = "courtid"
)

// Reservation view
const (
	reservationTitle = "Paris | TENNIS - Reservation"

	selCaptchaMarker   = ".captcha"
	selCaptchaFrame    = "#li-antibot-iframe"
	selCaptchaImage    = "#li-antibot-questions-container img"
	selCaptchaAnswer   = "#li-antibot-answer"
	selCaptchaValidate = "#li-antibot-validate"
	selCaptchaNote     = "#li-antibot-check-note"
	captchaVerified    = "Vérifié avec succès"

	selAddPlayer    = ".addPlayer"
	selPaymentMode  = "#order_select_payment_form #paymentMode"
	paymentSentinel = "existingTicket"
	selSubmit       = "#order_select_payment_form #envoyer"
	selPrevious     = "#previous"
	selCancel       = "#btnCancelBooking"

	selConfirmation = ".confirmReservation"
	selAddress      = ".address"
	selDate         = ".date"
	selCourt        = ".court"
)

// dateSelectors returns the picker cells for day, primary format first
func dateSelectors(day time.Time) []string {
	return []string{
		fmt.Sprintf(`[dateiso="%s"]`, day.Format("02/01/2006")),
		fmt.Sprintf(`[dateiso="%s"]`, day.Format("2/1/2006")),
	}
}

// slotSelector matches every bookable cell for day at hour
func slotSelector(day time.Time, hour string) string {
	return fmt.Sprintf(`[datedeb="%s %s:00:00"]`, day.Format("2006/01/02"), hour)
}

// bookButton narrows slotSelector to one court
func bookButton(courtID string, day time.Time, hour string) string {
	return fmt.Sprintf(`[%s="%s"]%s`, attrCourtID, courtID, slotSelector(day, hour))
}

// panelTitle is the header that expands the collapsed panel for an hour
func panelTitle(location, hour string) string {
	return fmt.Sprintf("#head%s%sh .panel-title", strings.ReplaceAll(location, " ", ""), hour)
}

// playerFields matches the name inputs of the i-th participant (zero based)
func playerFields(i int) string {
	return fmt.Sprintf(`[name="player%d"]`, i+1)
}
