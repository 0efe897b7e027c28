// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

// Package auth owns credentials and single-use tokens.
//
// # Domain Types
//
//   - Account - a registered user; created with NewAccount, which normalizes the email
//   - Token - a single-use secret for email verification or password reset
//
// Only the SHA-256 of a token ID is persisted. Password hashes never leave
// CredentialStore.
//
// # Services
//
//   - CredentialStore - account creation, password verification and replacement
//   - TokenIssuer - token minting with supersession, atomic single-use redemption
//
// Repository implementations live in the postgres, redis and memory
// subpackages. They must perform create-if-absent, token supersession and
// token consumption as single atomic operations.
package auth
