package api

import (
	"net/http"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

func payHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		var req PayRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		method, err := appointment.ParsePaymentMethod(req.Method)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		appt, err := svc.MarkPaid(r.Context(), identity(r), id, appointment.PayRequest{Method: method, Amount: req.Amount})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getPatientHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		p, err := svc.GetPatient(r.Context(), identity(r), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPatientResponse(p))
	}
}

func depositHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		var req DepositRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		p, err := svc.Deposit(r.Context(), identity(r), id, req.Amount, req.Description)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPatientResponse(p))
	}
}

func walletHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		txs, err := svc.ListWalletTransactions(r.Context(), identity(r), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := make([]WalletTransactionResponse, 0, len(txs))
		for _, t := range txs {
			resp = append(resp, WalletTransactionResponse{
				ID:            t.ID,
				Amount:        money(t.Amount),
				Kind:          string(t.Kind),
				Description:   t.Description,
				AppointmentID: t.AppointmentID,
				CreatedAt:     t.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// patientSummaryHandler serves /patients/{id}/summary.
func patientSummaryHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		sum, err := svc.FinancialSummary(r.Context(), identity(r), &id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSummaryResponse(sum))
	}
}

// summaryHandler serves the clinic-wide summary, or one patient's with ?patient_id.
func summaryHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := queryUUID(w, r, "patient_id")
		if !ok {
			return
		}
		sum, err := svc.FinancialSummary(r.Context(), identity(r), patientID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSummaryResponse(sum))
	}
}

func paymentReportHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		from, ok := parseDateField(w, "from", q.Get("from"))
		if !ok {
			return
		}
		to, ok := parseDateField(w, "to", q.Get("to"))
		if !ok {
			return
		}
		providerID, ok := queryUUID(w, r, "provider_id")
		if !ok {
			return
		}

		report, err := svc.PaymentReport(r.Context(), identity(r), from, to, providerID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toReportResponse(report))
	}
}
