// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package workflow

import (
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultMinPasswordLength is the shortest password accepted on signup and reset.
const DefaultMinPasswordLength = 8

// maxPasswordLength bounds hashing work per request.
const maxPasswordLength = 256

// SignupInput is the signup form.
type SignupInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email_address"`
	Password  string `json:"password"`
}

// Validate checks the form. minPassword is the minimum password length.
func (in SignupInput) Validate(minPassword int) error {
	fields := map[string]string{}
	if strings.TrimSpace(in.FirstName) == "" {
		fields["first_name"] = "first name is required"
	}
	if strings.TrimSpace(in.LastName) == "" {
		fields["last_name"] = "last name is required"
	}
	checkEmail(fields, in.Email)
	checkPassword(fields, "password", in.Password, minPassword)
	return fieldsError(fields)
}

// LoginInput is the login form.
type LoginInput struct {
	Email    string `json:"email_address"`
	Password string `json:"password"`
}

// Validate checks that both fields are present. Password rules are not
// applied at login; any mismatch is a credentials failure.
func (in LoginInput) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(in.Email) == "" {
		fields["email_address"] = "email address is required"
	}
	if in.Password == "" {
		fields["password"] = "password is required"
	}
	return fieldsError(fields)
}

// ResendInput asks for a new confirmation email.
type ResendInput struct {
	Email string `json:"email_address"`
}

// Validate checks the address.
func (in ResendInput) Validate() error {
	fields := map[string]string{}
	checkEmail(fields, in.Email)
	return fieldsError(fields)
}

// ResetRequestInput asks for a password-reset email.
type ResetRequestInput struct {
	Email string `json:"email_address"`
}

// Validate checks the address.
func (in ResetRequestInput) Validate() error {
	fields := map[string]string{}
	checkEmail(fields, in.Email)
	return fieldsError(fields)
}

// ResetSubmission completes a password reset. Token comes from the link.
type ResetSubmission struct {
	Token           string `json:"-"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate checks the new password and its confirmation.
func (in ResetSubmission) Validate(minPassword int) error {
	fields := map[string]string{}
	checkPassword(fields, "new_password", in.NewPassword, minPassword)
	if in.ConfirmPassword == "" {
		fields["confirm_password"] = "please confirm your new password"
	} else if in.ConfirmPassword != in.NewPassword {
		fields["confirm_password"] = "passwords do not match"
	}
	return fieldsError(fields)
}

func checkEmail(fields map[string]string, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		fields["email_address"] = "email address is required"
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		fields["email_address"] = "invalid email address"
	}
}

func checkPassword(fields map[string]string, field, password string, minLen int) {
	if minLen <= 0 {
		minLen = DefaultMinPasswordLength
	}
	n := utf8.RuneCountInString(password)
	switch {
	case password == "":
		fields[field] = "password is required"
	case n < minLen:
		fields[field] = "password must be at least " + strconv.Itoa(minLen) + " characters"
	case n > maxPasswordLength:
		fields[field] = "password is too long"
	}
}

func fieldsError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}
