// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package llm

import (
	"errors"
	"fmt"
)

// APIError normalizes provider failures so the failover handler can
// classify them without knowing each SDK's error types. StatusCode is 0
// when the failure happened before an HTTP response (dial errors,
// timeouts).
type APIError struct {
	Provider   string
	Model      string
	StatusCode int

	// KeyFingerprint identifies the credential the failed request was
	// sent with, so key-related failures bench that exact key rather
	// than whichever one the rotation would hand out next. Empty for
	// keyless (local) providers.
	KeyFingerprint string

	Err error
}

// Error implements error.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: model %s: HTTP %d: %v", e.Provider, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: model %s: %v", e.Provider, e.Model, e.Err)
}

// Unwrap implements errors.Unwrap.
func (e *APIError) Unwrap() error { return e.Err }

// AsAPIError extracts an APIError from an error chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
