// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"github.com/cockroachdb/errors"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Service related
	ErrServiceNotReady        = newChatError("service not ready", 1, true) // This indicates the service is still in init
	ErrServiceUnavailable     = newChatError("service unavailable", 2, true)
	ErrServiceTooManyRequests = newChatError("too many concurrent connections, worker pool is full", 3, true)
	ErrServiceInternal        = newChatError("service internal error", 4, false)

	// User / session related
	ErrUserNotFound      = newChatError("user not found", 100, false)
	ErrUserAlreadyExists = newChatError("user already exists", 101, false)
	ErrUserAlreadyOnline = newChatError("user already online", 102, false)
	ErrUserBanned        = newChatError("user is banned", 103, false)
	ErrUserMuted         = newChatError("user is muted", 104, false)
	ErrUserInactive      = newChatError("user account is inactive", 105, false)
	ErrSessionNotFound   = newChatError("session not found", 106, false)
	ErrSessionClosed     = newChatError("session closed", 107, false)

	// Auth related
	ErrCredentialMismatch = newChatError("username or password mismatch", 200, false)
	ErrCredentialInvalid  = newChatError("credential field invalid", 201, false)
	ErrSecretMalformed    = newChatError("stored secret material malformed", 202, false)
	ErrAuthVariantUnknown = newChatError("unknown authentication variant", 203, false)

	// Permission related
	ErrPermissionDenied  = newChatError("permission denied", 300, false)
	ErrRoleUnknown       = newChatError("unknown role", 301, false)
	ErrPermissionUnknown = newChatError("unknown permission", 302, false)

	// Command related
	ErrCommandNotFound   = newChatError("unknown command", 400, false)
	ErrCommandCooldown   = newChatError("command on cooldown", 401, true)
	ErrCommandFailed     = newChatError("command execution failed", 402, false)
	ErrCommandDuplicate  = newChatError("command already registered", 403, false)
	ErrCommandBadArgs    = newChatError("bad command arguments", 404, false)

	// Event bus related
	ErrListenerInvalid   = newChatError("listener metadata invalid", 500, false)
	ErrEventKindUnknown  = newChatError("unknown event kind", 501, false)
	ErrSchedulerStopped  = newChatError("delay scheduler stopped", 502, false)

	// Store related
	ErrStoreIO        = newChatError("store io failed", 600, true)
	ErrStoreCorrupted = newChatError("store content corrupted", 601, false)

	// Protocol related
	ErrProtocolViolation = newChatError("protocol violation", 700, false)

	errUnexpected = newChatError("unexpected error", 1001, false)
)

type errorOption func(*chatError)

func WithDetail(detail string) errorOption {
	return func(err *chatError) {
		err.detail = detail
	}
}

type chatError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
}

func newChatError(msg string, code int32, retriable bool, options ...errorOption) chatError {
	err := chatError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e chatError) code() int32 {
	return e.errCode
}

func (e chatError) Error() string {
	return e.msg
}

func (e chatError) Detail() string {
	return e.detail
}

func (e chatError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(chatError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}
