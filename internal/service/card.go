package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var cardDigits = regexp.MustCompile(`^\d{12,19}$`)

// CardDetails is a card validated for saving.
type CardDetails struct {
	Number      string
	Holder      string
	ExpiryMonth int
	ExpiryYear  int
}

// CleanCardNumber strips spaces and hyphens.
func CleanCardNumber(number string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(number)
}

// ValidateCardForSave checks a card entered as number, holder name and MM/YY
// (or MM/YYYY) expiry. Two-digit years are placed in the current century. A
// card expiring in the current month is still valid.
func ValidateCardForSave(number, holder, expiry string, now time.Time) (*CardDetails, error) {
	if number == "" || holder == "" || expiry == "" {
		return nil, newOpError(ErrValidation, "Please fill in all card details before saving.", nil)
	}

	cleaned := CleanCardNumber(number)
	if !cardDigits.MatchString(cleaned) {
		return nil, newOpError(ErrValidation, "Card number must contain 12 to 19 digits.", nil)
	}

	rawMonth, rawYear, _ := strings.Cut(expiry, "/")
	month, errMonth := strconv.Atoi(strings.TrimSpace(rawMonth))
	year, errYear := strconv.Atoi(strings.TrimSpace(rawYear))
	if errMonth != nil || errYear != nil {
		return nil, newOpError(ErrValidation, "Invalid expiry date.", nil)
	}

	if month < 1 || month > 12 {
		return nil, newOpError(ErrValidation, "Expiry month must be between 1 and 12.", nil)
	}

	currentYear, currentMonth := now.Year(), int(now.Month())
	if year < 100 {
		year += currentYear / 100 * 100
	}
	if year < currentYear || (year == currentYear && month < currentMonth) {
		return nil, newOpError(ErrValidation, "Card has expired.", nil)
	}

	return &CardDetails{
		Number:      cleaned,
		Holder:      holder,
		ExpiryMonth: month,
		ExpiryYear:  year,
	}, nil
}

// MaskedCardNumber is how a saved card is mirrored into the form.
func MaskedCardNumber(last4 string) string {
	return "**** **** **** " + last4
}

// FormatExpiry renders a month and year as MM/YY.
func FormatExpiry(month, year int) string {
	return fmt.Sprintf("%02d/%02d", month, year%100)
}
