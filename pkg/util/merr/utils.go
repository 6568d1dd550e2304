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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case chatError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

func IsRetryableErr(err error) bool {
	if err, ok := err.(chatError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}

// Message 返回对连接客户端可见的简短错误描述。
// 不包含堆栈信息或内部标识，仅包含叶子错误的 msg 部分。
func Message(err error) string {
	if err == nil {
		return ""
	}
	cause := errors.Cause(err)
	if cause, ok := cause.(chatError); ok {
		return cause.Error()
	}
	return errUnexpected.Error()
}

// User / session related
func WrapErrUserNotFound(username string, msg ...string) error {
	err := wrapFields(ErrUserNotFound, value("user", username))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrUserAlreadyExists(username string, msg ...string) error {
	err := wrapFields(ErrUserAlreadyExists, value("user", username))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrUserAlreadyOnline(username string, msg ...string) error {
	err := wrapFields(ErrUserAlreadyOnline, value("user", username))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrUserBanned(username string, msg ...string) error {
	err := wrapFields(ErrUserBanned, value("user", username))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrUserMuted(username string, msg ...string) error {
	err := wrapFields(ErrUserMuted, value("user", username))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSessionNotFound(username string, msg ...string) error {
	err := wrapFields(ErrSessionNotFound, value("user", username))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Auth related
func WrapErrCredentialInvalid(field string, msg ...string) error {
	err := wrapFields(ErrCredentialInvalid, value("field", field))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSecretMalformed(err error, msg ...string) error {
	if err == nil {
		return nil
	}
	werr := wrapFieldsWithDesc(ErrSecretMalformed, err.Error())
	if len(msg) > 0 {
		werr = errors.Wrap(werr, strings.Join(msg, "->"))
	}
	return werr
}

func WrapErrAuthVariantUnknown(variant string, msg ...string) error {
	err := wrapFields(ErrAuthVariantUnknown, value("variant", variant))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Permission related
func WrapErrPermissionDenied(username string, code int, msg ...string) error {
	err := wrapFields(ErrPermissionDenied,
		value("user", username),
		value("permission", code),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrPermissionUnknown(name string, msg ...string) error {
	err := wrapFields(ErrPermissionUnknown, value("permission", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrRoleUnknown(role string, msg ...string) error {
	err := wrapFields(ErrRoleUnknown, value("role", role))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Command related
func WrapErrCommandNotFound(name string, msg ...string) error {
	err := wrapFields(ErrCommandNotFound, value("command", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrCommandCooldown(name string, remaining time.Duration, msg ...string) error {
	err := wrapFields(ErrCommandCooldown,
		value("command", name),
		value("remaining", remaining),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrCommandFailed(name string, cause error) error {
	if cause == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrCommandFailed, cause.Error(), value("command", name))
}

func WrapErrCommandDuplicate(name string, msg ...string) error {
	err := wrapFields(ErrCommandDuplicate, value("command", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrCommandBadArgs(name string, reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrCommandBadArgs, reason, value("command", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Event bus related
func WrapErrListenerInvalid(name string, reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrListenerInvalid, reason, value("listener", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Store related
func WrapErrStoreIO(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrStoreIO, err.Error(), value("key", key))
}

func WrapErrStoreCorrupted(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrStoreCorrupted, err.Error(), value("key", key))
}

// Protocol related
func WrapErrProtocolViolation(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrProtocolViolation, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err chatError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err chatError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}
