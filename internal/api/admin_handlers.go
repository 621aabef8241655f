package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

func blockPatientHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		var req BlockRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := svc.BlockPatient(r.Context(), identity(r), id, appointment.BlockRequest{
			Login:   req.Login,
			Booking: req.Booking,
			Reason:  req.Reason,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPatientResponse(p))
	}
}

func unblockPatientHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		p, err := svc.UnblockPatient(r.Context(), identity(r), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPatientResponse(p))
	}
}

func listBlockedPhonesHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phones, err := svc.ListBlockedPhones(r.Context(), identity(r))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := make([]BlockedPhoneResponse, 0, len(phones))
		for _, p := range phones {
			resp = append(resp, BlockedPhoneResponse{Phone: p.Phone, Reason: p.Reason, CreatedAt: p.CreatedAt})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func addBlockedPhoneHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BlockedPhoneRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := svc.AddBlockedPhone(r.Context(), identity(r), req.Phone, req.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, BlockedPhoneResponse{Phone: p.Phone, Reason: p.Reason, CreatedAt: p.CreatedAt})
	}
}

func removeBlockedPhoneHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.RemoveBlockedPhone(r.Context(), identity(r), chi.URLParam(r, "phone")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// accessCheckHandler answers the login collaborator before a session exists:
// 200 with allowed=false and the block reason when the phone is blocked. It is
// public, so it only takes a phone; account flags need patientAccessHandler.
func accessCheckHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		action, err := appointment.ParseAction(q.Get("action"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if q.Has("patient_id") {
			writeError(w, http.StatusBadRequest, "patient_id_not_allowed", "patient lookups need an authenticated caller")
			return
		}
		phone := strings.TrimSpace(q.Get("phone"))
		if phone == "" {
			writeError(w, http.StatusBadRequest, "missing_phone", "phone is required")
			return
		}
		writeAccess(w, svc.CheckAccess(r.Context(), appointment.AccessRequest{Phone: phone, Action: action}))
	}
}

// patientAccessHandler checks a patient's block flags and the phone on file.
// Staff may ask about anyone, patients only about themselves.
func patientAccessHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		action, err := appointment.ParseAction(r.URL.Query().Get("action"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if id := identity(r); !id.IsStaff() && !id.OwnsPatient(patientID) {
			writeError(w, http.StatusForbidden, appointment.ReasonNotOwner, "patients can only check their own access")
			return
		}
		writeAccess(w, svc.CheckAccess(r.Context(), appointment.AccessRequest{PatientID: &patientID, Action: action}))
	}
}

func writeAccess(w http.ResponseWriter, err error) {
	var fe *appointment.ForbiddenError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, AccessResponse{Allowed: true})
	case errors.As(err, &fe):
		writeJSON(w, http.StatusOK, AccessResponse{Allowed: false, Reason: fe.Reason, Message: fe.Error()})
	default:
		writeServiceError(w, err)
	}
}

func listHolidaysHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holidays, err := svc.ListHolidays(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp := make([]HolidayResponse, 0, len(holidays))
		for i := range holidays {
			resp = append(resp, toHolidayResponse(&holidays[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func addHolidayHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HolidayRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		date, ok := parseDateField(w, "date", req.Date)
		if !ok {
			return
		}
		providerID, ok := optionalUUID(w, "provider_id", req.ProviderID)
		if !ok {
			return
		}

		h, cancelled, err := svc.AddHoliday(r.Context(), identity(r), appointment.HolidayRequest{
			Date:       date,
			Name:       req.Name,
			Recurring:  req.Recurring,
			ProviderID: providerID,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, AddHolidayResponse{Holiday: toHolidayResponse(h), Cancelled: cancelled})
	}
}

func deleteHolidayHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		if err := svc.DeleteHoliday(r.Context(), identity(r), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
