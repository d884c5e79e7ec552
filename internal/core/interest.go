package core

import (
	"BrokerLedger/internal/seed"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const daysPerYear = 365

var two = decimal.NewFromInt(2)

// interestAccrual holds the frozen annual rate and the accrual schedule.
type interestAccrual struct {
	mu          sync.RWMutex
	minRate     float64
	maxRate     float64
	annualRate  decimal.Decimal
	configured  bool
	accrualHour int
	lastInstant time.Time
}

func newInterestAccrual(accrualHour int) *interestAccrual {
	return &interestAccrual{accrualHour: accrualHour}
}

// configure resolves the annual rate once: the override when given,
// otherwise a uniform draw from [minRate, maxRate] seeded for this module.
func (a *interestAccrual) configure(minRate, maxRate float64, override *float64, src seed.Source) (decimal.Decimal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.configured {
		return a.annualRate, ErrAlreadyConfigured
	}
	if minRate < 0 || maxRate < minRate {
		return decimal.Zero, fmt.Errorf("invalid interest range [%v, %v]", minRate, maxRate)
	}

	var rate float64
	if override != nil {
		if *override < 0 {
			return decimal.Zero, fmt.Errorf("invalid interest override %v", *override)
		}
		rate = *override
	} else {
		if src == nil {
			return decimal.Zero, fmt.Errorf("seed source required when no override is set")
		}
		rng := seed.Rand(src, "AccountingService", 0, "interest")
		rate = minRate + rng.Float64()*(maxRate-minRate)
	}

	a.minRate = minRate
	a.maxRate = maxRate
	a.annualRate = decimal.NewFromFloat(rate)
	a.configured = true
	return a.annualRate, nil
}

func (a *interestAccrual) isConfigured() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.configured
}

func (a *interestAccrual) rates() (annual decimal.Decimal, minRate, maxRate float64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.annualRate, a.minRate, a.maxRate
}

// due reports whether at falls on an accrual instant that has not been
// accrued yet. The instant is at truncated to the hour.
func (a *interestAccrual) due(at time.Time) (time.Time, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if at.Hour() != a.accrualHour {
		return time.Time{}, false
	}
	instant := at.Truncate(time.Hour)
	if !a.lastInstant.IsZero() && a.lastInstant.Equal(instant) {
		return instant, false
	}
	return instant, true
}

func (a *interestAccrual) markAccrued(instant time.Time) {
	a.mu.Lock()
	a.lastInstant = instant
	a.mu.Unlock()
}

// dailyRate is annual/365, halved for non-negative balances.
func (a *interestAccrual) dailyRate(balance decimal.Decimal) decimal.Decimal {
	a.mu.RLock()
	rate := a.annualRate.Div(decimal.NewFromInt(daysPerYear))
	a.mu.RUnlock()

	if !balance.IsNegative() {
		rate = rate.Div(two)
	}
	return rate
}
