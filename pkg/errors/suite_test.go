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

package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"

	pauseerrors "github.com/awslabs/aws-pause/pkg/errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestErrors(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Errors")
}

var _ = Describe("Taxonomy", func() {
	It("should keep kinds distinct", func() {
		err := pauseerrors.Configurationf("no regions configured")
		Expect(pauseerrors.IsConfiguration(err)).To(BeTrue())
		Expect(pauseerrors.IsAuthentication(err)).To(BeFalse())
		Expect(pauseerrors.IsService(err)).To(BeFalse())
		Expect(pauseerrors.IsState(err)).To(BeFalse())
		Expect(pauseerrors.IsCancelled(err)).To(BeFalse())
	})
	It("should survive wrapping", func() {
		err := fmt.Errorf("loading snapshot pause-1, %w", pauseerrors.Statef("parsing snapshot file, unexpected end of JSON input"))
		Expect(pauseerrors.IsState(err)).To(BeTrue())
	})
	It("should expose the wrapped cause", func() {
		cause := stderrors.New("boom")
		err := pauseerrors.Service(fmt.Errorf("describing instances, %w", cause))
		Expect(stderrors.Is(err, cause)).To(BeTrue())
	})
	It("should return nil when wrapping nil", func() {
		Expect(pauseerrors.Configuration(nil)).To(BeNil())
		Expect(pauseerrors.Service(nil)).To(BeNil())
	})
})

var _ = Describe("Classification", func() {
	It("should classify credential-scope API errors as authentication", func() {
		apiErr := &smithy.GenericAPIError{Code: pauseerrors.AccessDeniedCode, Message: "not authorized"}
		err := pauseerrors.FromAPIError(fmt.Errorf("stopping instance i-123, %w", apiErr))
		Expect(pauseerrors.IsAuthentication(err)).To(BeTrue())
		Expect(pauseerrors.IsService(err)).To(BeFalse())
	})
	It("should classify other API errors as service", func() {
		apiErr := &smithy.GenericAPIError{Code: "InternalFailure", Message: "try again"}
		err := pauseerrors.FromAPIError(apiErr)
		Expect(pauseerrors.IsService(err)).To(BeTrue())
		Expect(pauseerrors.IsAuthentication(err)).To(BeFalse())
	})
	It("should detect access denied through wrapped chains", func() {
		apiErr := &smithy.GenericAPIError{Code: "UnauthorizedOperation"}
		Expect(pauseerrors.IsAccessDenied(fmt.Errorf("suspending processes, %w", apiErr))).To(BeTrue())
		Expect(pauseerrors.IsAccessDenied(stderrors.New("no codes here"))).To(BeFalse())
		Expect(pauseerrors.IsAccessDenied(nil)).To(BeFalse())
	})
})
