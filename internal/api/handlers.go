package api

import (
	"net/http"
	"strconv"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

func listProvidersHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := svc.ListProviders(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := make([]ProviderResponse, 0, len(providers))
		for i := range providers {
			resp = append(resp, toProviderResponse(&providers[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func availableDatesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		var from appointment.Date
		if raw := r.URL.Query().Get("from"); raw != "" {
			if from, ok = parseDateField(w, "from", raw); !ok {
				return
			}
		}
		horizon, ok := queryInt(w, r, "horizon")
		if !ok {
			return
		}

		dates, err := svc.AvailableDates(r.Context(), providerID, from, horizon)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := AvailableDatesResponse{ProviderID: providerID, Dates: make([]string, 0, len(dates))}
		for _, d := range dates {
			resp.Dates = append(resp.Dates, d.String())
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func timeSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		date, ok := parseDateField(w, "date", r.URL.Query().Get("date"))
		if !ok {
			return
		}

		slots, err := svc.TimeSlots(r.Context(), providerID, date)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := make([]TimeSlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, TimeSlotResponse{Time: s.Time.String(), Display: s.Display, IsAvailable: s.IsAvailable})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func bookHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		providerID, ok := parseUUIDField(w, "provider_id", req.ProviderID)
		if !ok {
			return
		}
		patientID, ok := parseUUIDField(w, "patient_id", req.PatientID)
		if !ok {
			return
		}
		date, ok := parseDateField(w, "date", req.Date)
		if !ok {
			return
		}
		clock, ok := parseClockField(w, "time", req.Time)
		if !ok {
			return
		}

		appt, err := svc.Book(r.Context(), identity(r), appointment.BookRequest{
			ProviderID: providerID,
			PatientID:  patientID,
			Date:       date,
			Time:       clock,
			Price:      req.Price,
			Notes:      req.Notes,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func walkInHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req WalkInRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		providerID, ok := parseUUIDField(w, "provider_id", req.ProviderID)
		if !ok {
			return
		}
		patientID, ok := optionalUUID(w, "patient_id", req.PatientID)
		if !ok {
			return
		}
		var date appointment.Date
		if req.Date != "" {
			if date, ok = parseDateField(w, "date", req.Date); !ok {
				return
			}
		}
		clock, ok := parseClockField(w, "time", req.Time)
		if !ok {
			return
		}

		in := appointment.WalkInRequest{
			ProviderID: providerID,
			PatientID:  patientID,
			Date:       date,
			Time:       clock,
			Price:      req.Price,
			Notes:      req.Notes,
		}
		if req.NewPatient != nil {
			in.NewPatient = &appointment.NewPatient{
				FullName: req.NewPatient.FullName,
				Phone:    req.NewPatient.Phone,
				Email:    req.NewPatient.Email,
			}
		}

		detail, err := svc.CreateWalkIn(r.Context(), identity(r), in)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toDetailResponse(detail))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		tab, err := appointment.ParseTab(q.Get("tab"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		f := appointment.ListFilter{Tab: tab}

		if raw := q.Get("status"); raw != "" {
			st, err := appointment.ParseStatus(raw)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			f.Status = &st
		}
		if raw := q.Get("payment_status"); raw != "" {
			ps, err := appointment.ParsePaymentStatus(raw)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			f.PaymentStatus = &ps
		}

		var ok bool
		if f.ProviderID, ok = queryUUID(w, r, "provider_id"); !ok {
			return
		}
		if f.PatientID, ok = queryUUID(w, r, "patient_id"); !ok {
			return
		}
		if f.Limit, ok = queryInt(w, r, "limit"); !ok {
			return
		}
		if f.Offset, ok = queryInt(w, r, "offset"); !ok {
			return
		}

		appts, err := svc.ListAppointments(r.Context(), identity(r), f)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("X-Result-Count", strconv.Itoa(len(appts)))
		writeJSON(w, http.StatusOK, toAppointmentList(appts))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		detail, err := svc.GetAppointment(r.Context(), identity(r), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDetailResponse(detail))
	}
}

func updateStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		var req StatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		status, err := appointment.ParseStatus(req.Status)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		appt, err := svc.Transition(r.Context(), identity(r), id, appointment.TransitionRequest{
			Status:     status,
			Reason:     req.Reason,
			FinalPrice: req.FinalPrice,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		var req CancelRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Cancel(r.Context(), identity(r), id, req.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		var req RescheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		date, ok := parseDateField(w, "date", req.Date)
		if !ok {
			return
		}
		clock, ok := parseClockField(w, "time", req.Time)
		if !ok {
			return
		}

		appt, err := svc.Reschedule(r.Context(), identity(r), id, appointment.RescheduleRequest{Date: date, Time: clock})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}
