package domain

// Stage identifies one filter stage of the signal pipeline.
type Stage string

// Pipeline stages in evaluation order.
const (
	StageWhale     Stage = "WHALE"
	StageTrade     Stage = "TRADE"
	StagePortfolio Stage = "PORTFOLIO"
)

// StageResult records pass/fail for one stage with a human-readable reason.
type StageResult struct {
	Stage  Stage
	Pass   bool
	Reason string
}

// Signal is the pipeline's evaluation record for one TradeEvent.
// Created fresh per event; never persisted beyond logging and metrics.
type Signal struct {
	Event *TradeEvent

	// Whale quality snapshot at evaluation time.
	QualityScore float64
	Tier         Tier

	// Stages actually evaluated, in order. A failed stage short-circuits:
	// later stages never appear.
	Stages []StageResult

	Accepted     bool
	RejectStage  Stage  // empty when accepted
	RejectReason string // empty when accepted
}

// FirstFailure returns the failing stage result, if any.
func (s *Signal) FirstFailure() (StageResult, bool) {
	for _, r := range s.Stages {
		if !r.Pass {
			return r, true
		}
	}
	return StageResult{}, false
}
