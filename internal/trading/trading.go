// Package trading provides capital sizing, risk limits and PnL accounting
// for the straddle strategy.
package trading

import "fmt"

// ExitReason represents the reason for an exit.
type ExitReason string

const (
	ExitReasonTarget        ExitReason = "target"
	ExitReasonStopLoss      ExitReason = "stop_loss"
	ExitReasonSessionCutoff ExitReason = "session_cutoff"
	ExitReasonManual        ExitReason = "manual"
	ExitReasonError         ExitReason = "error"
	ExitReasonShutdown      ExitReason = "shutdown"
)

// RiskLimits are the session's absolute PnL exit thresholds in rupees.
type RiskLimits struct {
	Target   float64 // positive
	StopLoss float64 // negative
}

// NewRiskLimits derives thresholds from the capital at session start.
func NewRiskLimits(initialCapital, targetPercent, stopLossPercent float64) RiskLimits {
	return RiskLimits{
		Target:   Round2(targetPercent * initialCapital / 100),
		StopLoss: -Round2(stopLossPercent * initialCapital / 100),
	}
}

// Check returns the exit reason when pnl has crossed a threshold.
func (r RiskLimits) Check(pnl float64) (ExitReason, bool) {
	switch {
	case pnl > r.Target:
		return ExitReasonTarget, true
	case pnl < r.StopLoss:
		return ExitReasonStopLoss, true
	}
	return "", false
}

func (r RiskLimits) String() string {
	return fmt.Sprintf("target %.2f / stop-loss %.2f", r.Target, r.StopLoss)
}
