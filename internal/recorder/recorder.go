package recorder

import "TradeSentinel/internal/model"

// Recorder journals engine decisions for later analysis.
type Recorder interface {
	RecordSignal(sig *model.Signal) error
	RecordTradeOpen(pos *model.Position) error
	RecordTradeClose(pos *model.Position) error
	RecordBudget(b *model.RiskBudget) error
	Close() error
}
