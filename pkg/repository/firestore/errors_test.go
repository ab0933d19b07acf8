package firestore_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
	"github.com/secmon-lab/punchcard/pkg/repository/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErr(t *testing.T) {
	for _, code := range []codes.Code{codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted} {
		t.Run(code.String(), func(t *testing.T) {
			err := firestore.WrapErr(status.Error(code, "backend"), "failed to get open session")
			gt.Bool(t, model.IsRetryable(err)).True()
			gt.Value(t, status.Code(err)).Equal(code)
		})
	}

	for _, code := range []codes.Code{codes.PermissionDenied, codes.InvalidArgument, codes.FailedPrecondition} {
		t.Run(code.String(), func(t *testing.T) {
			err := firestore.WrapErr(status.Error(code, "backend"), "failed to get open session")
			gt.Bool(t, model.IsRetryable(err)).False()
		})
	}
}
