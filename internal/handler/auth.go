package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"regexp"

	"github.com/google/uuid"

	"github.com/raspaplay/wallet-api/internal/domain"
	"github.com/raspaplay/wallet-api/internal/service/account"
)

type accountService interface {
	Register(ctx context.Context, req account.RegisterRequest) (*domain.Account, error)
	Login(ctx context.Context, email, password string) (string, *domain.Account, error)
}

type AuthHandler struct {
	accounts accountService
}

func NewAuthHandler(accounts accountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

var cpfPattern = regexp.MustCompile(`^\d{11}$`)

type registerRequest struct {
	Email        string  `json:"email"`
	Password     string  `json:"password"`
	Name         string  `json:"name"`
	CPF          string  `json:"cpf"`
	Phone        *string `json:"phone"`
	ReferralCode string  `json:"referral_code"`
}

func (r registerRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Email == "" {
		errs = append(errs, FieldError{Field: "email", Message: "required"})
	} else if _, err := mail.ParseAddress(r.Email); err != nil {
		errs = append(errs, FieldError{Field: "email", Message: "must be a valid email"})
	}
	if len(r.Password) < 8 {
		errs = append(errs, FieldError{Field: "password", Message: "must be at least 8 characters"})
	}
	if r.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "required"})
	}
	if !cpfPattern.MatchString(r.CPF) {
		errs = append(errs, FieldError{Field: "cpf", Message: "must be 11 digits"})
	}
	return errs
}

type accountDTO struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	ReferralCode string    `json:"referral_code"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	acc, err := h.accounts.Register(r.Context(), account.RegisterRequest{
		Email:        req.Email,
		Password:     req.Password,
		Name:         req.Name,
		CPF:          req.CPF,
		Phone:        req.Phone,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, accountDTO{
		ID:           acc.ID,
		Email:        acc.Email,
		Name:         acc.Name,
		ReferralCode: acc.ReferralCode,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Email == "" {
		errs = append(errs, FieldError{Field: "email", Message: "required"})
	}
	if r.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "required"})
	}
	return errs
}

type loginResponse struct {
	Token   string     `json:"token"`
	Account accountDTO `json:"account"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	token, acc, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, loginResponse{
		Token: token,
		Account: accountDTO{
			ID:           acc.ID,
			Email:        acc.Email,
			Name:         acc.Name,
			ReferralCode: acc.ReferralCode,
		},
	})
}
