package recorder

import "TradeSentinel/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSignal(_ *model.Signal) error       { return nil }
func (n *NoopRecorder) RecordTradeOpen(_ *model.Position) error  { return nil }
func (n *NoopRecorder) RecordTradeClose(_ *model.Position) error { return nil }
func (n *NoopRecorder) RecordBudget(_ *model.RiskBudget) error   { return nil }
func (n *NoopRecorder) Close() error                             { return nil }
