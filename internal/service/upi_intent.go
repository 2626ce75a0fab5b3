package service

import (
	"fmt"
	"net/url"
	"strings"
)

// PaymentApp is a UPI app the user can hand the payment off to.
type PaymentApp struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Scheme      string `json:"scheme,omitempty"`
	PackageName string `json:"packageName,omitempty"`
}

// Payment app ids
const (
	AppPhonePe = "phonepe"
	AppGPay    = "gpay"
	AppPaytm   = "paytm"
	AppQR      = "qr"
)

// PaymentApps lists the supported hand-off targets. The first one is the
// default selection.
var PaymentApps = []PaymentApp{
	{ID: AppPhonePe, Label: "PhonePe", Scheme: "phonepe://pay"},
	{ID: AppGPay, Label: "GPay", PackageName: "com.google.android.apps.nbu.paisa.user"},
	{ID: AppPaytm, Label: "Paytm", Scheme: "paytmmp://pay"},
	{ID: AppQR, Label: "QR Code"},
}

// LookupPaymentApp finds an app by id.
func LookupPaymentApp(id string) (PaymentApp, bool) {
	for _, app := range PaymentApps {
		if app.ID == id {
			return app, true
		}
	}
	return PaymentApp{}, false
}

// PayeeConfig is the merchant identity embedded in UPI intents.
type PayeeConfig struct {
	VPA      string
	Name     string
	Currency string
	TaxRate  float64
}

// BuildUPILink builds the generic upi://pay intent. Parameters are always
// emitted in the order pa, pn, am, cu, tn, tr.
func BuildUPILink(payee PayeeConfig, amount float64, referenceID string) string {
	params := [][2]string{
		{"pa", payee.VPA},
		{"pn", payee.Name},
		{"am", FormatAmount(amount)},
		{"cu", payee.Currency},
		{"tn", fmt.Sprintf("%s order %s", payee.Name, referenceID)},
		{"tr", referenceID},
	}

	var b strings.Builder
	b.WriteString("upi://pay?")
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	return b.String()
}

// BuildAppIntent rewrites a upi:// link for a specific app, keeping the query
// string untouched. The QR option and apps without a launch target get the
// link unchanged.
func BuildAppIntent(app PaymentApp, upiLink string) string {
	_, query, found := strings.Cut(upiLink, "?")
	if !found || query == "" || app.ID == AppQR {
		return upiLink
	}

	switch {
	case app.Scheme != "":
		return app.Scheme + "?" + query
	case app.PackageName != "":
		return fmt.Sprintf("intent://pay?%s#Intent;scheme=upi;package=%s;end", query, app.PackageName)
	}
	return upiLink
}
