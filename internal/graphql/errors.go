package graphql

import (
	"context"
	"errors"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/errcode"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/export"
	"github.com/rpattn/trialnotes/internal/logger"
	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

// Error codes set in the "code" extension of every resolver error.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeBadUserInput = "BAD_USER_INPUT"
	CodeInternal     = "INTERNAL"
)

var errorCodeMap = map[error]string{
	domain.ErrNotFound:            CodeNotFound,
	domain.ErrAlreadyExists:       CodeConflict,
	domain.ErrNameCollision:       CodeConflict,
	domain.ErrInvalidCustomField:  CodeBadUserInput,
	domain.ErrInvalidRule:         CodeBadUserInput,
	domain.ErrInvalidFilter:       CodeBadUserInput,
	export.ErrUnsupportedFormat:   CodeBadUserInput,
	ErrInvalidArgument:            CodeBadUserInput,
	jsonlogic.ErrUnknownOperation: CodeBadUserInput,
}

func codeFromError(err error) string {
	var validationErr *domain.ValidationError
	var unknownErr *domain.UnknownFunctionError
	if errors.As(err, &validationErr) || errors.As(err, &unknownErr) {
		return CodeBadUserInput
	}
	for target, code := range errorCodeMap {
		if errors.Is(err, target) {
			return code
		}
	}
	return CodeInternal
}

// presentError tags resolver errors with a code extension. Errors that
// already carry a code, such as validation failures, pass through.
// Internal errors are logged with their path.
func presentError(ctx context.Context, err error) *gqlerror.Error {
	gqlErr := graphql.DefaultErrorPresenter(ctx, err)
	if _, ok := gqlErr.Extensions["code"]; ok {
		return gqlErr
	}

	code := codeFromError(err)
	errcode.Set(gqlErr, code)
	if code == CodeInternal {
		logger.FromContext(ctx).Err(err).
			Str("func", "graphql.presentError").
			Str("path", gqlErr.Path.String()).
			Msg("resolver failed")
	}
	return gqlErr
}
