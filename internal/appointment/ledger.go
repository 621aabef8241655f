package appointment

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/auth"
)

type PayRequest struct {
	Method PaymentMethod
	Amount *decimal.Decimal // defaults to the amount due
}

// MarkPaid settles an appointment with a single payment. A Balance payment
// debits the wallet and fails when the wallet cannot cover it. Any amount
// above what is due is credited back to the wallet. The Unpaid to Paid move
// is never reversed here.
func (s *Service) MarkPaid(ctx context.Context, id auth.Identity, appointmentID uuid.UUID, req PayRequest) (*Appointment, error) {
	var (
		updated *Appointment
		paid    decimal.Decimal
	)
	err := s.run(ctx, "mark_paid", func(ctx context.Context) error {
		if !id.IsStaff() {
			return forbidden(ReasonWrongRole, "only staff can record payments")
		}
		if _, err := ParsePaymentMethod(string(req.Method)); err != nil {
			return err
		}
		if req.Amount != nil && !req.Amount.Round(2).IsPositive() {
			return invalid("invalid_amount", "amount must be positive")
		}

		return s.store.InTx(ctx, func(tx Tx) error {
			appt, err := tx.LockAppointment(ctx, appointmentID)
			if err != nil {
				return err
			}
			if appt.PaymentStatus == PaymentPaid {
				return ErrAlreadyPaid
			}
			if appt.Status == StatusCancelled {
				return invalid("appointment_cancelled", "cancelled appointments cannot be paid")
			}

			due := appt.AmountDue()
			amount := due
			if req.Amount != nil {
				amount = req.Amount.Round(2)
			}

			patient, err := tx.LockPatient(ctx, appt.PatientID)
			if err != nil {
				return err
			}

			now := s.now().UTC()
			walletChanged := false
			if req.Method == MethodBalance {
				if amount.GreaterThan(patient.Balance) {
					return &InsufficientBalanceError{Balance: patient.Balance, Amount: amount}
				}
				patient.Balance = patient.Balance.Sub(amount)
				walletChanged = true
				if err := tx.InsertWalletTransaction(ctx, &WalletTransaction{
					ID:            uuid.New(),
					PatientID:     patient.ID,
					Amount:        amount.Neg(),
					Kind:          WalletPayment,
					Description:   "payment for appointment on " + appt.Date.String(),
					AppointmentID: &appt.ID,
					CreatedBy:     ptr(id.UserID),
					CreatedAt:     now,
				}); err != nil {
					return err
				}
			}

			if excess := amount.Sub(due); excess.IsPositive() {
				patient.Balance = patient.Balance.Add(excess)
				walletChanged = true
				if err := tx.InsertWalletTransaction(ctx, &WalletTransaction{
					ID:            uuid.New(),
					PatientID:     patient.ID,
					Amount:        excess,
					Kind:          WalletCredit,
					Description:   "overpayment credit",
					AppointmentID: &appt.ID,
					CreatedBy:     ptr(id.UserID),
					CreatedAt:     now,
				}); err != nil {
					return err
				}
			}

			if walletChanged {
				patient.UpdatedAt = now
				if err := tx.UpdatePatient(ctx, patient); err != nil {
					return err
				}
			}

			if err := tx.InsertPayment(ctx, &Payment{
				ID:            uuid.New(),
				AppointmentID: appt.ID,
				Amount:        amount,
				Method:        req.Method,
				CreatedBy:     ptr(id.UserID),
				CreatedAt:     now,
			}); err != nil {
				return err
			}

			appt.PaymentStatus = PaymentPaid
			appt.UpdatedAt = now
			if err := tx.UpdateAppointment(ctx, appt); err != nil {
				return err
			}

			if err := s.logEvent(ctx, tx, &appt.ID, EventAppointmentPaid, map[string]any{
				"method":  string(req.Method),
				"amount":  amount.StringFixed(2),
				"due":     due.StringFixed(2),
				"balance": patient.Balance.StringFixed(2),
				"by":      id.UserID.String(),
			}); err != nil {
				return err
			}

			updated = appt
			paid = amount
			return nil
		})
	}, attribute.String("appointment_id", appointmentID.String()), attribute.String("method", string(req.Method)))

	s.metrics.ObservePayment(string(req.Method), outcomeOf(err), paid.InexactFloat64())
	if err != nil {
		return nil, err
	}
	s.log.Info("appointment paid",
		zap.String("appointment_id", updated.ID.String()),
		zap.String("method", string(req.Method)),
		zap.String("amount", paid.StringFixed(2)),
	)
	return updated, nil
}

// setFinalPrice overrides the list price. It only applies while Unpaid.
func setFinalPrice(appt *Appointment, price decimal.Decimal) error {
	if appt.PaymentStatus == PaymentPaid {
		return ErrAlreadyPaid
	}
	p := price.Round(2)
	appt.FinalPrice = &p
	return nil
}

// Deposit adds credit to a patient's wallet.
func (s *Service) Deposit(ctx context.Context, id auth.Identity, patientID uuid.UUID, amount decimal.Decimal, description string) (*Patient, error) {
	var updated *Patient
	err := s.run(ctx, "deposit", func(ctx context.Context) error {
		if !id.IsStaff() {
			return forbidden(ReasonWrongRole, "only staff can add balance")
		}
		if !amount.IsPositive() {
			return invalid("invalid_amount", "deposit amount must be positive")
		}
		amount = amount.Round(2)
		description = strings.TrimSpace(description)
		if description == "" {
			description = "balance deposit"
		}

		return s.store.InTx(ctx, func(tx Tx) error {
			patient, err := tx.LockPatient(ctx, patientID)
			if err != nil {
				return err
			}
			now := s.now().UTC()
			patient.Balance = patient.Balance.Add(amount)
			patient.UpdatedAt = now
			if err := tx.UpdatePatient(ctx, patient); err != nil {
				return err
			}
			if err := tx.InsertWalletTransaction(ctx, &WalletTransaction{
				ID:          uuid.New(),
				PatientID:   patient.ID,
				Amount:      amount,
				Kind:        WalletDeposit,
				Description: description,
				CreatedBy:   ptr(id.UserID),
				CreatedAt:   now,
			}); err != nil {
				return err
			}
			if err := s.logEvent(ctx, tx, nil, EventWalletDeposit, map[string]any{
				"patient_id": patient.ID.String(),
				"amount":     amount.StringFixed(2),
				"balance":    patient.Balance.StringFixed(2),
				"by":         id.UserID.String(),
			}); err != nil {
				return err
			}
			updated = patient
			return nil
		})
	}, attribute.String("patient_id", patientID.String()))
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) ListWalletTransactions(ctx context.Context, id auth.Identity, patientID uuid.UUID) ([]WalletTransaction, error) {
	var out []WalletTransaction
	err := s.run(ctx, "list_wallet_transactions", func(ctx context.Context) error {
		if !id.IsStaff() && !id.OwnsPatient(patientID) {
			return forbidden(ReasonNotOwner, "wallet belongs to someone else")
		}
		if _, err := s.store.GetPatient(ctx, patientID); err != nil {
			return err
		}
		txs, err := s.store.ListWalletTransactions(ctx, patientID)
		if err != nil {
			return err
		}
		out = txs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FinancialSummary aggregates one patient, or the whole clinic when patientID
// is nil. Patients always get their own summary.
func (s *Service) FinancialSummary(ctx context.Context, id auth.Identity, patientID *uuid.UUID) (*FinancialSummary, error) {
	var out *FinancialSummary
	err := s.run(ctx, "financial_summary", func(ctx context.Context) error {
		switch {
		case id.Role == auth.RolePatient:
			if id.PatientID == nil || (patientID != nil && !id.OwnsPatient(*patientID)) {
				return forbidden(ReasonNotOwner, "patients can only view their own summary")
			}
			patientID = id.PatientID
		case id.IsStaff():
		default:
			return forbidden(ReasonWrongRole, "role cannot view financial summaries")
		}

		var wallet decimal.Decimal
		if patientID != nil {
			patient, err := s.store.GetPatient(ctx, *patientID)
			if err != nil {
				return err
			}
			wallet = patient.Balance
		} else {
			total, err := s.store.TotalWalletBalance(ctx)
			if err != nil {
				return err
			}
			wallet = total
		}

		appts, err := s.store.ListAppointments(ctx, AppointmentQuery{PatientID: patientID})
		if err != nil {
			return err
		}
		payments, err := s.store.ListPayments(ctx, PaymentQuery{PatientID: patientID})
		if err != nil {
			return err
		}
		collected := make(map[uuid.UUID]decimal.Decimal, len(payments))
		for _, p := range payments {
			collected[p.AppointmentID] = collected[p.AppointmentID].Add(p.Amount)
		}
		out = summarize(appts, collected, wallet)
		out.PatientID = patientID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// summarize counts what the payments actually collected towards each
// appointment. Excess went to the wallet and is left out; a settled
// appointment that was underpaid still owes the difference.
func summarize(appts []Appointment, collected map[uuid.UUID]decimal.Decimal, wallet decimal.Decimal) *FinancialSummary {
	sum := &FinancialSummary{
		TotalPaid:     decimal.Zero,
		TotalUnpaid:   decimal.Zero,
		WalletBalance: wallet,
	}
	for i := range appts {
		a := &appts[i]
		due := a.AmountDue()
		switch {
		case a.PaymentStatus == PaymentPaid:
			paid := decimal.Min(collected[a.ID], due)
			sum.TotalPaid = sum.TotalPaid.Add(paid)
			if a.Status != StatusCancelled {
				sum.TotalUnpaid = sum.TotalUnpaid.Add(due.Sub(paid))
			}
		case a.Status != StatusCancelled:
			sum.TotalUnpaid = sum.TotalUnpaid.Add(due)
		}
	}
	sum.RemainingBalance = decimal.Max(decimal.Zero, sum.TotalUnpaid.Sub(wallet))
	return sum
}

// PaymentReport lists the payments taken in [from, to] in the clinic's
// local days, with totals by method and by provider.
func (s *Service) PaymentReport(ctx context.Context, id auth.Identity, from, to Date, providerID *uuid.UUID) (*PaymentReport, error) {
	var out *PaymentReport
	err := s.run(ctx, "payment_report", func(ctx context.Context) error {
		if !id.IsStaff() {
			return forbidden(ReasonWrongRole, "only staff can view payment reports")
		}
		if from.IsZero() || to.IsZero() || to.Before(from) {
			return invalid("invalid_range", "from and to are required and from must not be after to")
		}

		lines, err := s.store.ListPayments(ctx, PaymentQuery{
			Since:      from.In(s.loc()),
			Until:      to.AddDays(1).In(s.loc()),
			ProviderID: providerID,
		})
		if err != nil {
			return err
		}

		report := &PaymentReport{
			From:       from,
			To:         to,
			Lines:      lines,
			Total:      decimal.Zero,
			Average:    decimal.Zero,
			ByMethod:   make(map[PaymentMethod]decimal.Decimal),
			ByProvider: make(map[uuid.UUID]decimal.Decimal),
		}
		for _, l := range lines {
			report.Total = report.Total.Add(l.Amount)
			report.ByMethod[l.Method] = report.ByMethod[l.Method].Add(l.Amount)
			report.ByProvider[l.ProviderID] = report.ByProvider[l.ProviderID].Add(l.Amount)
		}
		report.Count = len(lines)
		if report.Count > 0 {
			report.Average = report.Total.Div(decimal.NewFromInt(int64(report.Count))).Round(2)
		}
		out = report
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
