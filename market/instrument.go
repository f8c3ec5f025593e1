package market

import (
	"errors"
	"fmt"
	"math"
)

const (
	// HistoryCap is the default number of past prices kept per instrument.
	HistoryCap = 100

	// PriceFloor is the lowest price an instrument can reach.
	PriceFloor = 0.01

	SentimentMin = -1.0
	SentimentMax = 1.0
)

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrHalted        = errors.New("instrument halted")
)

// CorruptError reports an instrument whose state can no longer be advanced.
type CorruptError struct {
	Symbol string
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("instrument %s corrupt: %s", e.Symbol, e.Reason)
}

// Is lets errors.Is(err, ErrHalted) match a corrupt instrument.
func (e *CorruptError) Is(target error) bool {
	return target == ErrHalted
}

// Instrument is a simulated tradable symbol.
type Instrument struct {
	Symbol        string    `json:"symbol" yaml:"symbol"`
	Company       string    `json:"company" yaml:"company"`
	Sector        string    `json:"sector" yaml:"sector"`
	Price         float64   `json:"price" yaml:"price"`
	PreviousClose float64   `json:"previous_close" yaml:"previous_close"`
	Open          float64   `json:"open" yaml:"open"`
	Volatility    float64   `json:"volatility" yaml:"volatility"`
	Sentiment     float64   `json:"sentiment" yaml:"sentiment"`
	History       []float64 `json:"history,omitempty" yaml:"history,omitempty"`
}

// Change is the move since the previous close.
func (i Instrument) Change() float64 {
	return i.Price - i.PreviousClose
}

// ChangePercent is Change as a percentage of the previous close.
func (i Instrument) ChangePercent() float64 {
	if i.PreviousClose == 0 {
		return 0
	}
	return i.Change() / i.PreviousClose * 100
}

// Validate reports whether the instrument can be safely advanced.
func (i Instrument) Validate() error {
	switch {
	case i.Symbol == "":
		return &CorruptError{Symbol: "?", Reason: "empty symbol"}
	case !finite(i.Price) || i.Price <= 0:
		return &CorruptError{Symbol: i.Symbol, Reason: fmt.Sprintf("price %v", i.Price)}
	case !finite(i.Volatility) || i.Volatility < 0:
		return &CorruptError{Symbol: i.Symbol, Reason: fmt.Sprintf("volatility %v", i.Volatility)}
	case !finite(i.Sentiment) || i.Sentiment < SentimentMin || i.Sentiment > SentimentMax:
		return &CorruptError{Symbol: i.Symbol, Reason: fmt.Sprintf("sentiment %v", i.Sentiment)}
	}
	return nil
}

func (i Instrument) clone() Instrument {
	i.History = append([]float64(nil), i.History...)
	return i
}

// ClampSentiment bounds s to [SentimentMin, SentimentMax]. NaN becomes 0.
func ClampSentiment(s float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	return math.Max(SentimentMin, math.Min(SentimentMax, s))
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
