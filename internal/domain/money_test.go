package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewMoney_InvalidCurrency(t *testing.T) {
	for _, code := range []string{"", "us", "usd", "USDX", "U5D"} {
		_, err := NewMoney(decimal.NewFromInt(1), code)
		if !errors.Is(err, ErrInvalidCurrency) {
			t.Errorf("currency %q: expected ErrInvalidCurrency, got %v", code, err)
		}
		if !errors.Is(err, ErrValidation) {
			t.Errorf("currency %q: expected a validation failure, got %v", code, err)
		}
	}
}

func TestMoney_AddSubtractSameCurrency(t *testing.T) {
	a := MustMoney("10.50", "USD")
	b := MustMoney("2.25", "USD")

	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sum.Equal(MustMoney("12.75", "USD")) {
		t.Errorf("expected 12.75 USD, got %s", sum)
	}

	diff, err := a.Subtract(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !diff.Equal(MustMoney("8.25", "USD")) {
		t.Errorf("expected 8.25 USD, got %s", diff)
	}

	// operands untouched
	if !a.Equal(MustMoney("10.50", "USD")) {
		t.Errorf("expected receiver to stay 10.50 USD, got %s", a)
	}
}

func TestMoney_CrossCurrencyRejected(t *testing.T) {
	usd := MustMoney("1.00", "USD")
	eur := MustMoney("1.00", "EUR")

	if _, err := usd.Add(eur); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("add: expected ErrCurrencyMismatch, got %v", err)
	}
	if _, err := usd.Subtract(eur); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("subtract: expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestMoney_MultiplyPreservesCurrency(t *testing.T) {
	price := MustMoney("10.00", "EUR")

	got := price.Multiply(3)
	if got.Currency() != "EUR" || !got.Amount().Equal(decimal.NewFromInt(30)) {
		t.Errorf("expected 30 EUR, got %s", got)
	}

	half := price.MultiplyDecimal(decimal.RequireFromString("0.5"))
	if half.Currency() != "EUR" || !half.Amount().Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected 5 EUR, got %s", half)
	}
}

func TestMoney_JSON(t *testing.T) {
	data, err := json.Marshal(MustMoney("10.00", "USD"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !back.Equal(MustMoney("10", "USD")) {
		t.Errorf("expected 10 USD, got %s", back)
	}

	if err := json.Unmarshal([]byte(`{"amount":"1","currency":"usd"}`), &back); !errors.Is(err, ErrInvalidCurrency) {
		t.Errorf("expected ErrInvalidCurrency, got %v", err)
	}
}
