package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tanvir-rahman/doctorsportal/internal/model"
	"github.com/tanvir-rahman/doctorsportal/internal/storage"
)

type DoctorHandler struct {
	doctors *storage.DoctorRepository
	logger  *slog.Logger
}

func NewDoctorHandler(doctors *storage.DoctorRepository, logger *slog.Logger) *DoctorHandler {
	return &DoctorHandler{doctors: doctors, logger: logger}
}

type doctorRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Specialty string `json:"specialty"`
}

type doctorResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Specialty string `json:"specialty"`
}

// Doctors serves the collection: GET lists, POST adds. Both admin-only.
func (h *DoctorHandler) Doctors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *DoctorHandler) list(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.doctors.List(r.Context())
	if err != nil {
		h.logger.Error("doctor list failed", "err", err)
		http.Error(w, "failed to list doctors", http.StatusInternalServerError)
		return
	}
	out := make([]doctorResponse, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, doctorResponse{ID: d.ID, Name: d.Name, Email: d.Email, Specialty: d.Specialty})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *DoctorHandler) create(w http.ResponseWriter, r *http.Request) {
	var req doctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Specialty = strings.TrimSpace(req.Specialty)
	if req.Name == "" || req.Email == "" || req.Specialty == "" {
		http.Error(w, "name, email and specialty required", http.StatusBadRequest)
		return
	}

	id, err := h.doctors.Create(r.Context(), model.Doctor{
		Name:      req.Name,
		Email:     req.Email,
		Specialty: req.Specialty,
	})
	if err != nil {
		if storage.IsUniqueViolation(err) {
			http.Error(w, "doctor email already registered", http.StatusConflict)
			return
		}
		if storage.IsForeignKeyViolation(err) {
			http.Error(w, "specialty must match a treatment name", http.StatusBadRequest)
			return
		}
		h.logger.Error("doctor create failed", "err", err)
		http.Error(w, "failed to add doctor", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, doctorResponse{
		ID:        id,
		Name:      req.Name,
		Email:     req.Email,
		Specialty: req.Specialty,
	})
}

type deleteDoctorRequest struct {
	DoctorID string `json:"doctor_id"`
}

func (h *DoctorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req deleteDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	if req.DoctorID == "" {
		http.Error(w, "doctor_id required", http.StatusBadRequest)
		return
	}

	if err := h.doctors.Delete(r.Context(), req.DoctorID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "doctor not found", http.StatusNotFound)
			return
		}
		h.logger.Error("doctor delete failed", "err", err, "doctor_id", req.DoctorID)
		http.Error(w, "failed to delete doctor", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
