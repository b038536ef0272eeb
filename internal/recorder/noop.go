package recorder

import "BinarySentinel/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSample(_ *model.MarketSample) error { return nil }
func (n *NoopRecorder) RecordPricing(_ *PricingEvent) error      { return nil }
func (n *NoopRecorder) RecordAlert(_ *AlertEvent) error          { return nil }
func (n *NoopRecorder) RecordHedge(_ *HedgeEvent) error          { return nil }
func (n *NoopRecorder) Close() error                             { return nil }
