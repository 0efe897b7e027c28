// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/formgate/formgate/internal/auth"
	"github.com/formgate/formgate/internal/workflow"
)

// Messages for success-shaped responses that must not reveal whether an
// account exists.
const (
	msgResendAccepted = "if the address belongs to an unverified account, a new confirmation email is on its way"
	msgResetAccepted  = "if the address belongs to an account, a password reset email is on its way"
	msgPasswordReset  = "password updated"
)

type verifiedBody struct {
	Message string           `json:"message"`
	Account auth.AccountView `json:"account"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in workflow.SignupInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeFailure(w, err)
		return
	}

	account, err := s.flows.Signup(r.Context(), in)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account.View())
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in workflow.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeFailure(w, err)
		return
	}

	account, err := s.flows.Login(r.Context(), in, r.Header.Get(AgentHeader))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account.View())
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	account, err := s.flows.VerifyEmail(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verifiedBody{Message: "email address verified", Account: account.View()})
}

func (s *Server) handleResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var in workflow.ResendInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeFailure(w, err)
		return
	}

	if err := s.flows.ResendConfirmation(r.Context(), in); err != nil {
		writeFailure(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msgResendAccepted)
}

func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var in workflow.ResetRequestInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeFailure(w, err)
		return
	}

	if err := s.flows.RequestPasswordReset(r.Context(), in); err != nil {
		writeFailure(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msgResetAccepted)
}

func (s *Server) handleResetSubmit(w http.ResponseWriter, r *http.Request) {
	var in workflow.ResetSubmission
	if err := decodeJSON(w, r, &in); err != nil {
		writeFailure(w, err)
		return
	}
	in.Token = chi.URLParam(r, "token")

	if err := s.flows.ResetPassword(r.Context(), in); err != nil {
		writeFailure(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msgPasswordReset)
}
