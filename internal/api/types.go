package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// Requests. Dates are "2006-01-02", times "15:04" in the clinic's local time.

type BookRequest struct {
	ProviderID string           `json:"provider_id"`
	PatientID  string           `json:"patient_id"`
	Date       string           `json:"date"`
	Time       string           `json:"time"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Notes      *string          `json:"notes,omitempty"`
}

type NewPatientRequest struct {
	FullName string  `json:"full_name"`
	Phone    string  `json:"phone"`
	Email    *string `json:"email,omitempty"`
}

type WalkInRequest struct {
	ProviderID string             `json:"provider_id"`
	PatientID  *string            `json:"patient_id,omitempty"`
	NewPatient *NewPatientRequest `json:"new_patient,omitempty"`
	Date       string             `json:"date,omitempty"`
	Time       string             `json:"time"`
	Price      *decimal.Decimal   `json:"price,omitempty"`
	Notes      *string            `json:"notes,omitempty"`
}

type StatusRequest struct {
	Status     string           `json:"status"`
	Reason     *string          `json:"reason,omitempty"`
	FinalPrice *decimal.Decimal `json:"final_price,omitempty"`
}

type CancelRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type PayRequest struct {
	Method string           `json:"method"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

type DepositRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

type BlockRequest struct {
	Login   bool   `json:"login"`
	Booking bool   `json:"booking"`
	Reason  string `json:"reason,omitempty"`
}

type BlockedPhoneRequest struct {
	Phone  string `json:"phone"`
	Reason string `json:"reason,omitempty"`
}

type HolidayRequest struct {
	Date       string  `json:"date"`
	Name       string  `json:"name"`
	Recurring  bool    `json:"recurring"`
	ProviderID *string `json:"provider_id,omitempty"`
}

// Responses. Money is rendered with two decimals.

type AppointmentResponse struct {
	ID            uuid.UUID  `json:"id"`
	ProviderID    uuid.UUID  `json:"provider_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	Date          string     `json:"date"`
	Time          string     `json:"time"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	Kind          string     `json:"kind"`
	Price         string     `json:"price"`
	FinalPrice    *string    `json:"final_price,omitempty"`
	AmountDue     string     `json:"amount_due"`
	Notes         *string    `json:"notes,omitempty"`
	CancelReason  *string    `json:"cancel_reason,omitempty"`
	CreatedBy     *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	Patient  *PatientResponse  `json:"patient,omitempty"`
	Provider *ProviderResponse `json:"provider,omitempty"`
}

type WorkingHoursResponse struct {
	Weekday string `json:"weekday"`
	Open    string `json:"open"`
	Close   string `json:"close"`
}

type ProviderResponse struct {
	ID           uuid.UUID              `json:"id"`
	Name         string                 `json:"name"`
	Specialty    *string                `json:"specialty,omitempty"`
	SlotMinutes  int                    `json:"slot_minutes"`
	DefaultPrice string                 `json:"default_price"`
	Hours        []WorkingHoursResponse `json:"hours"`
}

type PatientResponse struct {
	ID             uuid.UUID  `json:"id"`
	FullName       string     `json:"full_name"`
	Phone          string     `json:"phone"`
	Email          *string    `json:"email,omitempty"`
	Balance        string     `json:"balance"`
	NoShowCount    int        `json:"no_show_count"`
	LoginBlocked   bool       `json:"login_blocked"`
	BookingBlocked bool       `json:"booking_blocked"`
	BlockReason    *string    `json:"block_reason,omitempty"`
	BlockedAt      *time.Time `json:"blocked_at,omitempty"`
}

type TimeSlotResponse struct {
	Time        string `json:"time"`
	Display     string `json:"display"`
	IsAvailable bool   `json:"is_available"`
}

type AvailableDatesResponse struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Dates      []string  `json:"dates"`
}

type WalletTransactionResponse struct {
	ID            uuid.UUID  `json:"id"`
	Amount        string     `json:"amount"`
	Kind          string     `json:"kind"`
	Description   string     `json:"description"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type FinancialSummaryResponse struct {
	PatientID        *uuid.UUID `json:"patient_id,omitempty"`
	TotalPaid        string     `json:"total_paid"`
	TotalUnpaid      string     `json:"total_unpaid"`
	RemainingBalance string     `json:"remaining_balance"`
	WalletBalance    string     `json:"wallet_balance"`
}

type PaymentLineResponse struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Amount        string    `json:"amount"`
	Method        string    `json:"method"`
	PatientID     uuid.UUID `json:"patient_id"`
	PatientName   string    `json:"patient_name"`
	ProviderID    uuid.UUID `json:"provider_id"`
	ProviderName  string    `json:"provider_name"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	CreatedAt     time.Time `json:"created_at"`
}

type PaymentReportResponse struct {
	From       string                `json:"from"`
	To         string                `json:"to"`
	Payments   []PaymentLineResponse `json:"payments"`
	Total      string                `json:"total"`
	Count      int                   `json:"count"`
	Average    string                `json:"average"`
	ByMethod   map[string]string     `json:"by_method"`
	ByProvider map[string]string     `json:"by_provider"`
}

type HolidayResponse struct {
	ID         uuid.UUID  `json:"id"`
	Date       string     `json:"date"`
	Name       string     `json:"name"`
	Recurring  bool       `json:"recurring"`
	ProviderID *uuid.UUID `json:"provider_id,omitempty"`
}

type AddHolidayResponse struct {
	Holiday   HolidayResponse `json:"holiday"`
	Cancelled int             `json:"cancelled_appointments"`
}

type BlockedPhoneResponse struct {
	Phone     string    `json:"phone"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AccessResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:            a.ID,
		ProviderID:    a.ProviderID,
		PatientID:     a.PatientID,
		Date:          a.Date.String(),
		Time:          a.Time.String(),
		Status:        string(a.Status),
		PaymentStatus: string(a.PaymentStatus),
		Kind:          string(a.Kind),
		Price:         money(a.Price),
		AmountDue:     money(a.AmountDue()),
		Notes:         a.Notes,
		CancelReason:  a.CancelReason,
		CreatedBy:     a.CreatedBy,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if a.FinalPrice != nil {
		fp := money(*a.FinalPrice)
		resp.FinalPrice = &fp
	}
	return resp
}

func toAppointmentList(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}

func toDetailResponse(d *appointment.AppointmentDetail) AppointmentDetailResponse {
	resp := AppointmentDetailResponse{AppointmentResponse: toAppointmentResponse(&d.Appointment)}
	if d.Patient != nil {
		p := toPatientResponse(d.Patient)
		resp.Patient = &p
	}
	if d.Provider != nil {
		p := toProviderResponse(d.Provider)
		resp.Provider = &p
	}
	return resp
}

func toProviderResponse(p *appointment.Provider) ProviderResponse {
	resp := ProviderResponse{
		ID:           p.ID,
		Name:         p.Name,
		Specialty:    p.Specialty,
		SlotMinutes:  p.SlotMinutes,
		DefaultPrice: money(p.DefaultPrice),
		Hours:        make([]WorkingHoursResponse, 0, len(p.Hours)),
	}
	for _, h := range p.Hours {
		resp.Hours = append(resp.Hours, WorkingHoursResponse{
			Weekday: h.Weekday.String(),
			Open:    h.Open.String(),
			Close:   h.Close.String(),
		})
	}
	return resp
}

func toPatientResponse(p *appointment.Patient) PatientResponse {
	return PatientResponse{
		ID:             p.ID,
		FullName:       p.FullName,
		Phone:          p.Phone,
		Email:          p.Email,
		Balance:        money(p.Balance),
		NoShowCount:    p.NoShowCount,
		LoginBlocked:   p.LoginBlocked,
		BookingBlocked: p.BookingBlocked,
		BlockReason:    p.BlockReason,
		BlockedAt:      p.BlockedAt,
	}
}

func toHolidayResponse(h *appointment.Holiday) HolidayResponse {
	return HolidayResponse{
		ID:         h.ID,
		Date:       h.Date.String(),
		Name:       h.Name,
		Recurring:  h.Recurring,
		ProviderID: h.ProviderID,
	}
}

func toSummaryResponse(s *appointment.FinancialSummary) FinancialSummaryResponse {
	return FinancialSummaryResponse{
		PatientID:        s.PatientID,
		TotalPaid:        money(s.TotalPaid),
		TotalUnpaid:      money(s.TotalUnpaid),
		RemainingBalance: money(s.RemainingBalance),
		WalletBalance:    money(s.WalletBalance),
	}
}

func toReportResponse(r *appointment.PaymentReport) PaymentReportResponse {
	resp := PaymentReportResponse{
		From:       r.From.String(),
		To:         r.To.String(),
		Payments:   make([]PaymentLineResponse, 0, len(r.Lines)),
		Total:      money(r.Total),
		Count:      r.Count,
		Average:    money(r.Average),
		ByMethod:   make(map[string]string, len(r.ByMethod)),
		ByProvider: make(map[string]string, len(r.ByProvider)),
	}
	for _, l := range r.Lines {
		resp.Payments = append(resp.Payments, PaymentLineResponse{
			ID:            l.ID,
			AppointmentID: l.AppointmentID,
			Amount:        money(l.Amount),
			Method:        string(l.Method),
			PatientID:     l.PatientID,
			PatientName:   l.PatientName,
			ProviderID:    l.ProviderID,
			ProviderName:  l.ProviderName,
			Date:          l.Date.String(),
			Time:          l.Time.String(),
			CreatedAt:     l.CreatedAt,
		})
	}
	for m, v := range r.ByMethod {
		resp.ByMethod[string(m)] = money(v)
	}
	for p, v := range r.ByProvider {
		resp.ByProvider[p.String()] = money(v)
	}
	return resp
}
