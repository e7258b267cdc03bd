package api

import (
	"context"
	"fmt"
	"net/url"
)

const (
	dailyPricePath = "/uapi/domestic-stock/v1/quotations/inquire-price"

	// dailyPriceTRID identifies the historical daily price inquiry.
	dailyPriceTRID = "FHKST01010100"

	// screenDivCode selects the stock screen division.
	screenDivCode = "20171"

	// maxDailyRows is the provider's page cap for daily bars.
	maxDailyRows = "100"
)

// GetDailyPrices fetches daily OHLCV bars for one instrument over an
// inclusive date range. The provider answers a nonzero return code with
// HTTP 200; that surfaces here as a DataError.
func (c *Client) GetDailyPrices(ctx context.Context, code string, opts DailyPricesOptions) (*DailyPricesResponse, error) {
	query := url.Values{}
	query.Set("FID_COND_MRKT_DIV_CODE", opts.Market.Code())
	query.Set("FID_COND_SCR_DIV_CODE", screenDivCode)
	query.Set("FID_INPUT_ISCD", code)
	query.Set("FID_INPUT_DATE_1", opts.StartDate.Format("20060102"))
	query.Set("FID_INPUT_DATE_2", opts.EndDate.Format("20060102"))
	query.Set("FID_VOL_CNT", maxDailyRows)

	var resp DailyPricesResponse
	if err := c.get(ctx, dailyPricePath, dailyPriceTRID, query, &resp); err != nil {
		return nil, fmt.Errorf("get daily prices %s: %w", code, err)
	}

	if resp.ReturnCode != 0 {
		return nil, fmt.Errorf("get daily prices %s: %w", code,
			&DataError{Code: resp.ReturnCode, Msg: resp.ReturnMsg})
	}

	return &resp, nil
}
