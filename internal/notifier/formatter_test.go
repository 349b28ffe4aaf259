package notifier

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"

	"FundMe/internal/model"
)

func wei(s string) *uint256.Int { return uint256.MustFromDecimal(s) }

func TestFormatAmounts(t *testing.T) {
	assert.Equal(t, "1.0000 ETH", FormatETH(wei("1000000000000000000")))
	assert.Equal(t, "0.0250 ETH", FormatETH(wei("25000000000000000")))
	assert.Equal(t, "0.0000 ETH", FormatETH(nil))
	assert.Equal(t, "$2000.00", FormatUSD(wei("2000000000000000000000")))
	assert.Equal(t, "$50.00", FormatUSD(wei("50000000000000000000")))
}

func TestFormatStatus(t *testing.T) {
	st := model.LedgerStatus{
		Contract: common.HexToAddress("0x01"),
		Owner:    common.HexToAddress("0x02"),
		Balance:  wei("3000000000000000000"),
		Funders: []model.FunderRecord{
			{Account: common.HexToAddress("0x03"), Amount: wei("1000000000000000000")},
			{Account: common.HexToAddress("0x04"), Amount: wei("2000000000000000000")},
		},
	}
	msg := FormatStatus(st, wei("2000000000000000000000"))
	assert.Contains(t, msg, "3.0000 ETH")
	assert.Contains(t, msg, "$6000.00")
	assert.Contains(t, msg, "Funders: 2")

	assert.NotContains(t, FormatStatus(st, nil), "≈")

	list := FormatFunders(st)
	assert.Contains(t, list, "1. <code>0x0000000000000000000000000000000000000003</code>  1.0000 ETH")
	assert.Contains(t, list, "2.0000 ETH")
	assert.Equal(t, "👥 No funders yet", FormatFunders(model.LedgerStatus{}))
}

func TestFormatPrice(t *testing.T) {
	ok := &model.PriceCheck{Feed: "mock ETH / USD", Answer: "200000000000", Decimals: 8,
		USDPerUnit: wei("2000000000000000000000"), OK: true}
	assert.Contains(t, FormatPrice(ok), "1 ETH = $2000.00")
	assert.Contains(t, FormatFeedRecovered(ok), "$2000.00")

	down := &model.PriceCheck{Feed: "mock ETH / USD", Error: "price feed unavailable"}
	assert.Contains(t, FormatPrice(down), "unavailable")
}

func TestFormatWithdrawal(t *testing.T) {
	r := &model.Receipt{
		Method:  "cheaperWithdraw",
		GasUsed: 60_000,
		Fee:     wei("60000000000000"),
		Events: []model.Event{{
			Kind:    model.EventWithdrawn,
			Account: common.HexToAddress("0x02"),
			Amount:  wei("6000000000000000000"),
			Funders: make([]common.Address, 6),
		}},
	}
	msg := FormatWithdrawal(r)
	assert.Contains(t, msg, "via cheaperWithdraw")
	assert.Contains(t, msg, "6.0000 ETH")
	assert.Contains(t, msg, "Funders cleared: 6")
}
