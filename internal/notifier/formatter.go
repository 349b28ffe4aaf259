package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"FundMe/internal/model"
)

const precision = 18

// ToDecimal converts an 18-decimal fixed-point amount to a decimal.
func ToDecimal(v *uint256.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v.ToBig(), -precision)
}

// FormatETH renders a wei amount as ether with 4 decimals.
func FormatETH(wei *uint256.Int) string {
	return ToDecimal(wei).StringFixed(4) + " ETH"
}

// FormatUSD renders an 18-decimal USD amount.
func FormatUSD(usd *uint256.Int) string {
	return "$" + ToDecimal(usd).StringFixed(2)
}

// FormatStatus formats the ledger summary. usdPerUnit may be nil when the feed is down.
func FormatStatus(st model.LedgerStatus, usdPerUnit *uint256.Int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>FundMe status</b> | %s\n\n", time.Now().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Contract: <code>%s</code>\n", st.Contract.Hex()))
	b.WriteString(fmt.Sprintf("Owner: <code>%s</code>\n", st.Owner.Hex()))
	b.WriteString(fmt.Sprintf("Balance: %s", FormatETH(st.Balance)))
	if usdPerUnit != nil {
		usd := ToDecimal(st.Balance).Mul(ToDecimal(usdPerUnit))
		b.WriteString(fmt.Sprintf(" (≈ $%s)", usd.StringFixed(2)))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Funders: %d\n", len(st.Funders)))
	return b.String()
}

// FormatFunders lists every funder with its cumulative contribution.
func FormatFunders(st model.LedgerStatus) string {
	if st.Empty() {
		return "👥 No funders yet"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("👥 <b>Funders</b> (%d)\n\n", len(st.Funders)))
	for i, f := range st.Funders {
		b.WriteString(fmt.Sprintf("%d. <code>%s</code>  %s\n", i+1, f.Account.Hex(), FormatETH(f.Amount)))
	}
	return b.String()
}

// FormatPrice formats one feed query.
func FormatPrice(pc *model.PriceCheck) string {
	if !pc.OK {
		return fmt.Sprintf("⚠️ <b>Price feed unavailable</b>\n%s\n%s", pc.Feed, pc.Error)
	}
	return fmt.Sprintf("💱 <b>%s</b>\n1 ETH = %s\nRaw answer: %s (%d decimals)",
		pc.Feed, FormatUSD(pc.USDPerUnit), pc.Answer, pc.Decimals)
}

// FormatFeedRecovered is sent when the feed answers again after an outage.
func FormatFeedRecovered(pc *model.PriceCheck) string {
	return fmt.Sprintf("✅ <b>Price feed recovered</b>\n1 ETH = %s", FormatUSD(pc.USDPerUnit))
}

// FormatWithdrawal describes a committed withdrawal.
func FormatWithdrawal(r *model.Receipt) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("💸 <b>Withdrawal</b> via %s\n\n", r.Method))
	for _, e := range r.Events {
		if e.Kind != model.EventWithdrawn {
			continue
		}
		b.WriteString(fmt.Sprintf("Owner: <code>%s</code>\n", e.Account.Hex()))
		b.WriteString(fmt.Sprintf("Amount: %s\n", FormatETH(e.Amount)))
		b.WriteString(fmt.Sprintf("Funders cleared: %d\n", len(e.Funders)))
	}
	b.WriteString(fmt.Sprintf("Gas used: %d (fee %s)\n", r.GasUsed, FormatETH(r.Fee)))
	b.WriteString(fmt.Sprintf("Tx: <code>%s</code>", r.TxHash.Hex()))
	return b.String()
}
