package txn

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TariffType classifies tariff transactions. Only CONSUME and PRODUCE carry
// energy that counts toward the distribution report and net load.
type TariffType int32

const (
	TariffPublish TariffType = iota
	TariffProduce
	TariffConsume
	TariffPeriodic
	TariffSignup
	TariffWithdraw
	TariffRevoke
	TariffRefund
)

var tariffTypeNames = map[TariffType]string{
	TariffPublish:  "PUBLISH",
	TariffProduce:  "PRODUCE",
	TariffConsume:  "CONSUME",
	TariffPeriodic: "PERIODIC",
	TariffSignup:   "SIGNUP",
	TariffWithdraw: "WITHDRAW",
	TariffRevoke:   "REVOKE",
	TariffRefund:   "REFUND",
}

func (t TariffType) String() string {
	if name, ok := tariffTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseTariffType maps a wire name back to its TariffType.
func ParseTariffType(s string) (TariffType, bool) {
	for t, name := range tariffTypeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

func (t TariffType) MarshalText() ([]byte, error) {
	name, ok := tariffTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown tariff type %d", int32(t))
	}
	return []byte(name), nil
}

func (t *TariffType) UnmarshalText(text []byte) error {
	parsed, ok := ParseTariffType(string(text))
	if !ok {
		return fmt.Errorf("unknown tariff type %q", text)
	}
	*t = parsed
	return nil
}

// IsEnergy reports whether the subtype moves energy (CONSUME or PRODUCE).
func (t TariffType) IsEnergy() bool {
	return t == TariffConsume || t == TariffProduce
}

// TariffTransaction records a customer interaction with a broker's tariff.
type TariffTransaction struct {
	Header
	TxType        TariffType      `json:"tx_type"`
	Spec          *TariffSpec     `json:"spec"`
	Customer      *CustomerInfo   `json:"customer"`
	CustomerCount int             `json:"customer_count"`
	Quantity      decimal.Decimal `json:"quantity"` // kWh, signed; consumption is negative
	Charge        decimal.Decimal `json:"charge"`   // Deposited to the broker as given
}

func (t *TariffTransaction) Kind() Kind {
	return KindTariff
}

func (t *TariffTransaction) MessageType() string {
	return KindTariff.String()
}
