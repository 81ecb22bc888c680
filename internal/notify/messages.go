package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// OpportunityMessage renders a detected opportunity.
func OpportunityMessage(opp domain.Opportunity) (title, body string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Pair: <code>%s</code>\n", html.EscapeString(opp.Pair()))
	fmt.Fprintf(&b, "Buy: %s at %s\n", html.EscapeString(opp.BuyVenue), opp.BuyPrice.StringFixed(6))
	fmt.Fprintf(&b, "Sell: %s at %s\n", html.EscapeString(opp.SellVenue), opp.SellPrice.StringFixed(6))
	fmt.Fprintf(&b, "Spread: %s%%\n", opp.SpreadPct.StringFixed(2))
	if opp.Profit != nil {
		fmt.Fprintf(&b, "Net profit: $%s\n", opp.Profit.Net.StringFixed(2))
	}
	fmt.Fprintf(&b, "Verdict: <i>%s</i>\n", opp.Verdict)
	b.WriteString(opp.DetectedAt.UTC().Format(timeLayout))
	return "Opportunity detected", b.String()
}

// DispatchMessage renders a dispatched opportunity.
func DispatchMessage(opp domain.Opportunity, res domain.DispatchResult) (title, body string) {
	title = "Flash loan submitted"
	if res.Simulated {
		title = "Flash loan simulated"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Pair: <code>%s</code>\n", html.EscapeString(opp.Pair()))
	fmt.Fprintf(&b, "Route: %s → %s\n", html.EscapeString(opp.BuyVenue), html.EscapeString(opp.SellVenue))
	borrowed := 0
	for _, l := range opp.Financing {
		fmt.Fprintf(&b, "Loan: $%s in %s (premium %s)\n", l.Principal.StringFixed(0), html.EscapeString(l.Symbol), l.Premium.StringFixed(2))
		borrowed++
	}
	if borrowed == 0 {
		b.WriteString("Loan: none\n")
	}
	fmt.Fprintf(&b, "<b>Expected profit: $%s</b>\n", res.ExpectedProfit.StringFixed(2))
	tx := res.TxHash
	if tx == "" {
		tx = "n/a"
	}
	fmt.Fprintf(&b, "Tx: <code>%s</code>\n", html.EscapeString(tx))
	b.WriteString(res.SubmittedAt.UTC().Format(timeLayout))
	return title, b.String()
}

// ErrorMessage renders a failure in the named context.
func ErrorMessage(where string, err error, at time.Time) (title, body string) {
	return "Monitor error", fmt.Sprintf("Context: %s\nError: <code>%s</code>\n%s",
		html.EscapeString(where), html.EscapeString(err.Error()), at.UTC().Format(timeLayout))
}

// EndpointSwitchMessage renders a change of RPC endpoint.
func EndpointSwitchMessage(from, to domain.EndpointStatus, at time.Time) (title, body string) {
	return "RPC endpoint switched", fmt.Sprintf("From: #%d <code>%s</code>\nTo: #%d <code>%s</code>\n%s",
		from.Index, html.EscapeString(from.URL), to.Index, html.EscapeString(to.URL), at.UTC().Format(timeLayout))
}
