package market

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "options-hedge/internal/errors"
	"options-hedge/internal/models"
)

// csvRow is one line of a daily market file. VIX and RiskFree are optional
// and may be blank on individual rows.
type csvRow struct {
	Date     string  `csv:"Date"`
	Close    float64 `csv:"Close"`
	VIX      string  `csv:"VIX"`
	RiskFree string  `csv:"RiskFree"`
}

// LoadCSVFile reads a market file from disk. See LoadCSV.
func LoadCSVFile(path, symbol string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening market file: %w", err)
	}
	defer f.Close()
	return LoadCSV(f, symbol)
}

// LoadCSV parses a CSV with a header containing Date and Close, and
// optionally VIX and RiskFree columns. Dates use YYYY-MM-DD. A VIX or rate
// series is attached only when at least one row carries a value.
func LoadCSV(r io.Reader, symbol string) (*Series, error) {
	var rows []*csvRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parsing market csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrDataNotFound, "market csv has no rows")
	}

	dates := make([]time.Time, 0, len(rows))
	closes := make([]float64, 0, len(rows))
	var vix, rates []models.RatePoint

	for i, row := range rows {
		d, err := time.Parse(models.DateLayout, strings.TrimSpace(row.Date))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid date %q: %w", i+1, row.Date, err)
		}
		dates = append(dates, d)
		closes = append(closes, row.Close)

		if v, ok, err := optionalFloat(row.VIX); err != nil {
			return nil, fmt.Errorf("row %d: invalid VIX %q: %w", i+1, row.VIX, err)
		} else if ok {
			vix = append(vix, models.RatePoint{Date: d, Value: v})
		}
		if v, ok, err := optionalFloat(row.RiskFree); err != nil {
			return nil, fmt.Errorf("row %d: invalid RiskFree %q: %w", i+1, row.RiskFree, err)
		} else if ok {
			rates = append(rates, models.RatePoint{Date: d, Value: v})
		}
	}

	s, err := NewSeries(symbol, dates, closes)
	if err != nil {
		return nil, err
	}
	if len(vix) > 0 {
		s.WithVIX(vix)
	}
	if len(rates) > 0 {
		s.WithRiskFreeRate(rates)
	}
	return s, nil
}

func optionalFloat(raw string) (float64, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// quoteRow is one line of an option quote file, using the column names of
// the usual end-of-day option price exports. Other columns are ignored.
type quoteRow struct {
	Date      string  `csv:"date"`
	Expiry    string  `csv:"exdate"`
	Strike    float64 `csv:"strike_price"`
	CallPut   string  `csv:"cp_flag"`
	BestBid   float64 `csv:"best_bid"`
	BestOffer float64 `csv:"best_offer"`
}

// LoadQuotesCSVFile reads an option quote file from disk. See LoadQuotesCSV.
func LoadQuotesCSVFile(path string) ([]models.OptionQuote, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening quote file: %w", err)
	}
	defer f.Close()
	return LoadQuotesCSV(f)
}

// LoadQuotesCSV parses option quotes with date, exdate, strike_price,
// cp_flag, best_bid and best_offer columns. Strikes are in index points and
// cp_flag is normalized to "P" or "C".
func LoadQuotesCSV(r io.Reader) ([]models.OptionQuote, error) {
	var rows []*quoteRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parsing quote csv: %w", err)
	}

	quotes := make([]models.OptionQuote, 0, len(rows))
	for i, row := range rows {
		d, err := time.Parse(models.DateLayout, strings.TrimSpace(row.Date))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid date %q: %w", i+1, row.Date, err)
		}
		exp, err := time.Parse(models.DateLayout, strings.TrimSpace(row.Expiry))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid exdate %q: %w", i+1, row.Expiry, err)
		}
		cp := strings.ToUpper(strings.TrimSpace(row.CallPut))
		if cp != "P" && cp != "C" {
			return nil, apperrors.NewValidationError("cp_flag", row.CallPut, fmt.Sprintf("row %d: want P or C", i+1))
		}
		if row.Strike <= 0 || row.BestBid < 0 || row.BestOffer < row.BestBid {
			return nil, apperrors.NewValidationError("quote", i+1, "need a positive strike and 0 <= bid <= offer")
		}
		quotes = append(quotes, models.OptionQuote{
			Date:    d,
			Expiry:  exp,
			Strike:  row.Strike,
			CallPut: cp,
			BestBid: row.BestBid,
			BestAsk: row.BestOffer,
		})
	}
	return quotes, nil
}
