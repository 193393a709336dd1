/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package errors

import (
	"fmt"

	"github.com/aws/smithy-go"
	"github.com/samber/lo"
)

const (
	AccessDeniedCode          = "AccessDenied"
	AccessDeniedExceptionCode = "AccessDeniedException"
)

// This is not an exhaustive list, add to it as needed
var authenticationErrorCodes = map[string]struct{}{
	AccessDeniedCode:              {},
	AccessDeniedExceptionCode:     {},
	"UnauthorizedOperation":       {},
	"AuthFailure":                 {},
	"ExpiredToken":                {},
	"ExpiredTokenException":       {},
	"InvalidClientTokenId":        {},
	"UnrecognizedClientException": {},
}

// ConfigurationError marks missing or malformed inputs reaching the
// core (bad regions, bad role ARNs, unknown kinds).
type ConfigurationError struct {
	error
}

func (e ConfigurationError) Unwrap() error {
	return e.error
}

func Configuration(err error) error {
	if err == nil {
		return nil
	}
	return ConfigurationError{err}
}

func Configurationf(format string, args ...any) error {
	return ConfigurationError{fmt.Errorf(format, args...)}
}

func IsConfiguration(err error) bool {
	_, ok := lo.ErrorsAs[ConfigurationError](err)
	return ok
}

// AuthenticationError marks a session that refuses to vend a client or
// a credential-scoped rejection from a cloud API.
type AuthenticationError struct {
	error
}

func (e AuthenticationError) Unwrap() error {
	return e.error
}

func Authentication(err error) error {
	if err == nil {
		return nil
	}
	return AuthenticationError{err}
}

func Authenticationf(format string, args ...any) error {
	return AuthenticationError{fmt.Errorf(format, args...)}
}

func IsAuthentication(err error) bool {
	_, ok := lo.ErrorsAs[AuthenticationError](err)
	return ok
}

// ServiceError marks cloud-API failures. Inside a fan-out these are
// recorded per resource; only a whole-phase failure surfaces one.
type ServiceError struct {
	error
}

func (e ServiceError) Unwrap() error {
	return e.error
}

func Service(err error) error {
	if err == nil {
		return nil
	}
	return ServiceError{err}
}

func Servicef(format string, args ...any) error {
	return ServiceError{fmt.Errorf(format, args...)}
}

func IsService(err error) bool {
	_, ok := lo.ErrorsAs[ServiceError](err)
	return ok
}

// StateError marks snapshot parse or integrity failures and unreadable
// snapshot storage.
type StateError struct {
	error
}

func (e StateError) Unwrap() error {
	return e.error
}

func State(err error) error {
	if err == nil {
		return nil
	}
	return StateError{err}
}

func Statef(format string, args ...any) error {
	return StateError{fmt.Errorf(format, args...)}
}

func IsState(err error) bool {
	_, ok := lo.ErrorsAs[StateError](err)
	return ok
}

// CancelledError marks an operation interrupted by the user via the
// cancellation flag. Callers receive it alongside partial results.
type CancelledError struct {
	error
}

func (e CancelledError) Unwrap() error {
	return e.error
}

func Cancelled(err error) error {
	if err == nil {
		return nil
	}
	return CancelledError{err}
}

func Cancelledf(format string, args ...any) error {
	return CancelledError{fmt.Errorf(format, args...)}
}

func IsCancelled(err error) bool {
	_, ok := lo.ErrorsAs[CancelledError](err)
	return ok
}

// FromAPIError classifies an SDK error into the taxonomy: credential
// scope rejections become AuthenticationErrors, everything else from
// the cloud becomes a ServiceError.
func FromAPIError(err error) error {
	if err == nil {
		return nil
	}
	if IsAccessDenied(err) {
		return AuthenticationError{err}
	}
	return ServiceError{err}
}

// IsAccessDenied returns true if the error is an AWS error (even if
// it's wrapped) and is known to mean the caller's credentials do not
// cover the operation.
func IsAccessDenied(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := lo.ErrorsAs[smithy.APIError](err); ok {
		_, denied := authenticationErrorCodes[apiErr.ErrorCode()]
		return denied
	}
	return false
}
