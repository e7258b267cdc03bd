package api

import (
	"time"

	"github.com/rickgao/kiwoom-data/internal/model"
)

// DailyPricesResponse from GET /uapi/domestic-stock/v1/quotations/inquire-price.
type DailyPricesResponse struct {
	ReturnCode int          `json:"return_code"`
	ReturnMsg  string       `json:"return_msg"`
	Prices     []DailyPrice `json:"daly_stkpc"`
}

// DailyPrice is one raw daily bar as served by the provider. Everything
// arrives as strings; change fields carry +/- sign prefixes.
type DailyPrice struct {
	Date              string `json:"date"`
	OpenPrice         string `json:"open_pric"`
	HighPrice         string `json:"high_pric"`
	LowPrice          string `json:"low_pric"`
	ClosePrice        string `json:"close_pric"`
	PriceChange       string `json:"pred_rt"`
	FluctuationRate   string `json:"flu_rt"`
	Volume            string `json:"trde_qty"`
	Amount            string `json:"amt_mn"`
	CreditRate        string `json:"crd_rt"`
	ForeignRate       string `json:"for_rt"`
	ForeignPossession string `json:"for_poss"`
	ForeignWeight     string `json:"for_wght"`
}

// DailyPricesOptions configures a GetDailyPrices request.
type DailyPricesOptions struct {
	Market    model.Market
	StartDate time.Time
	EndDate   time.Time
}
