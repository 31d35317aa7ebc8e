package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	walletTransactions metric.Int64Counter
	workflowTransitions metric.Int64Counter
	campaignSlotClaims metric.Int64Counter
	inviteConsumptions metric.Int64Counter
	settlementEvents   metric.Int64Counter
	realtimeDelivered  metric.Int64Counter
	realtimeDropped    metric.Int64Counter
	loginAttempts      metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "partnerledger"
	}
	meter := provider.Meter(name)

	walletTransactions, err := meter.Int64Counter("partnerledger_wallet_transactions_total")
	if err != nil {
		return nil, err
	}
	workflowTransitions, err := meter.Int64Counter("partnerledger_order_workflow_transitions_total")
	if err != nil {
		return nil, err
	}
	campaignSlotClaims, err := meter.Int64Counter("partnerledger_campaign_slot_claims_total")
	if err != nil {
		return nil, err
	}
	inviteConsumptions, err := meter.Int64Counter("partnerledger_invite_consumptions_total")
	if err != nil {
		return nil, err
	}
	settlementEvents, err := meter.Int64Counter("partnerledger_settlement_events_total")
	if err != nil {
		return nil, err
	}
	realtimeDelivered, err := meter.Int64Counter("partnerledger_realtime_events_delivered_total")
	if err != nil {
		return nil, err
	}
	realtimeDropped, err := meter.Int64Counter("partnerledger_realtime_events_dropped_total")
	if err != nil {
		return nil, err
	}
	loginAttempts, err := meter.Int64Counter("partnerledger_login_attempts_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		walletTransactions:  walletTransactions,
		workflowTransitions: workflowTransitions,
		campaignSlotClaims:  campaignSlotClaims,
		inviteConsumptions:  inviteConsumptions,
		settlementEvents:    settlementEvents,
		realtimeDelivered:   realtimeDelivered,
		realtimeDropped:     realtimeDropped,
		loginAttempts:       loginAttempts,
	}, nil
}

// RecordWalletTransaction increments wallet ledger write counts.
func (m *Metrics) RecordWalletTransaction(ctx context.Context, txType, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tx_type", strings.TrimSpace(txType)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.walletTransactions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWorkflowTransition increments order workflow state transition counts.
func (m *Metrics) RecordWorkflowTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from", strings.TrimSpace(from)),
		attribute.String("to", strings.TrimSpace(to)),
	)
	m.workflowTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCampaignSlotClaim increments campaign slot claim counts.
func (m *Metrics) RecordCampaignSlotClaim(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.campaignSlotClaims.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInviteConsumption increments invite consumption counts.
func (m *Metrics) RecordInviteConsumption(ctx context.Context, role, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("role", strings.TrimSpace(role)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.inviteConsumptions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSettlementEvent increments settlement orchestration event counts.
func (m *Metrics) RecordSettlementEvent(ctx context.Context, step, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("step", strings.TrimSpace(step)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.settlementEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRealtimeDelivered increments per-subscriber realtime delivery counts.
func (m *Metrics) RecordRealtimeDelivered(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.realtimeDelivered.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRealtimeDropped increments overflow-dropped realtime event counts.
func (m *Metrics) RecordRealtimeDropped(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.realtimeDropped.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLoginAttempt increments authentication attempt counts.
func (m *Metrics) RecordLoginAttempt(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.loginAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"tx_type":    {},
	"status":     {},
	"from":       {},
	"to":         {},
	"result":     {},
	"role":       {},
	"step":       {},
	"event_type": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
