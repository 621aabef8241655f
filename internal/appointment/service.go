package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventWalkInCreated          = "WALK_IN_CREATED"
	EventAppointmentTransition  = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentPaid        = "APPOINTMENT_PAID"
	EventWalletDeposit          = "WALLET_DEPOSIT"
	EventPatientBlocked         = "PATIENT_BLOCKED"
	EventPatientUnblocked       = "PATIENT_UNBLOCKED"
	EventHolidayCancelled       = "APPOINTMENT_HOLIDAY_CANCELLED"
)

type Service struct {
	store   Store
	locker  redisclient.Locker
	cfg     config.Config
	log     *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithClock replaces time.Now. Tests pin it to a fixed instant.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		store:  store,
		locker: locker,
		cfg:    cfg,
		log:    zap.NewNop(),
		tracer: otel.Tracer("github.com/hackgods/clinic-scheduling/internal/appointment"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = redisclient.NopLocker{}
	}
	if s.cfg.Clinic.Location == nil {
		s.cfg.Clinic.Location = time.UTC
	}
	return s
}

func (s *Service) loc() *time.Location { return s.cfg.Clinic.Location }

func (s *Service) today() Date {
	return DateOf(s.now().In(s.loc()))
}

// run bounds one core operation by the configured timeout, traces it, and
// classifies whatever error comes back.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	if s.cfg.OpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.OpTimeout)
		defer cancel()
	}

	ctx, span := s.tracer.Start(ctx, "appointment."+op, trace.WithAttributes(attrs...))
	defer span.End()

	err := classify(op, fn(ctx))
	if err == nil {
		return nil
	}

	span.RecordError(err)

	var (
		ie *InternalError
		te *TimeoutError
	)
	switch {
	case errors.As(err, &ie):
		span.SetStatus(codes.Error, err.Error())
		s.log.Error("operation failed", zap.String("op", op), zap.Error(err))
	case errors.As(err, &te):
		span.SetStatus(codes.Error, err.Error())
		s.log.Warn("operation timed out", zap.String("op", op), zap.Error(err))
	default:
		s.log.Info("operation rejected", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (s *Service) withSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	err := s.locker.WithSlotLock(ctx, key, fn)
	if errors.Is(err, redisclient.ErrLockWaitExceeded) {
		return &TimeoutError{Op: "acquire slot lock"}
	}
	return err
}

// logEvent writes to event_logs inside tx, so the record commits or rolls
// back with the change it describes.
func (s *Service) logEvent(ctx context.Context, tx Tx, appointmentID *uuid.UUID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     s.now().UTC(),
	}
	if err := tx.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("insert event %s: %w", eventType, err)
	}
	return nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		ce  *ConflictError
		fe  *ForbiddenError
		ve  *ValidationError
		pv  *PolicyViolation
		ite *InvalidTransitionError
		ibe *InsufficientBalanceError
		nfe *NotFoundError
		te  *TimeoutError
	)
	switch {
	case errors.As(err, &ce):
		return ce.Code
	case errors.As(err, &fe):
		return "forbidden"
	case errors.As(err, &ve):
		return "invalid"
	case errors.As(err, &pv):
		return "policy"
	case errors.As(err, &ite):
		return "invalid_transition"
	case errors.As(err, &ibe):
		return "insufficient_balance"
	case errors.As(err, &nfe):
		return "not_found"
	case errors.As(err, &te):
		return "timeout"
	default:
		return "error"
	}
}

func ptr[T any](v T) *T { return &v }
