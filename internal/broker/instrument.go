package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Instrument is one row of the broker's instrument master
type Instrument struct {
	Symbol        string  `json:"symbol"` // underlying, e.g. NIFTY
	Expiry        string  `json:"expiry"` // ISO date
	Strike        float64 `json:"strike"`
	OptionType    string  `json:"option_type"` // CE | PE
	TradingSymbol string  `json:"trading_symbol"`
	LotSize       int     `json:"lot_size"`
	Exchange      string  `json:"exchange,omitempty"`
	Tradable      *bool   `json:"tradable,omitempty"`
}

// IsTradable defaults to true when the broker omits the flag
func (i Instrument) IsTradable() bool {
	return i.Tradable == nil || *i.Tradable
}

// UnmarshalJSON accepts numeric strike and lot size either as JSON numbers
// or as numeric strings.
func (i *Instrument) UnmarshalJSON(b []byte) error {
	var raw struct {
		Symbol        string     `json:"symbol"`
		Expiry        string     `json:"expiry"`
		Strike        flexNumber `json:"strike"`
		OptionType    string     `json:"option_type"`
		TradingSymbol string     `json:"trading_symbol"`
		LotSize       flexNumber `json:"lot_size"`
		Exchange      string     `json:"exchange"`
		Tradable      *bool      `json:"tradable"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*i = Instrument{
		Symbol:        raw.Symbol,
		Expiry:        raw.Expiry,
		Strike:        float64(raw.Strike),
		OptionType:    raw.OptionType,
		TradingSymbol: raw.TradingSymbol,
		LotSize:       int(raw.LotSize),
		Exchange:      raw.Exchange,
		Tradable:      raw.Tradable,
	}
	return nil
}

type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s", string(b))
	}
	*n = flexNumber(v)
	return nil
}
