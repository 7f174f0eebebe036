package graphql

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/export"
	"github.com/rpattn/trialnotes/pkg/jsonlogic"
)

func TestCodeFromError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("entry 4: %w", domain.ErrNotFound), CodeNotFound},
		{domain.ErrNameCollision, CodeConflict},
		{&domain.ValidationError{Rule: "a", Function: "join"}, CodeBadUserInput},
		{&domain.UnknownFunctionError{Rule: "a", Function: "x"}, CodeBadUserInput},
		{fmt.Errorf("aggregate x: %w", jsonlogic.ErrUnknownOperation), CodeBadUserInput},
		{fmt.Errorf("%w: \"pdf\"", export.ErrUnsupportedFormat), CodeBadUserInput},
		{assert.AnError, CodeInternal},
	}
	for _, tt := range tests {
		if got := codeFromError(tt.err); got != tt.want {
			t.Fatalf("codeFromError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestPresentError(t *testing.T) {
	gqlErr := presentError(context.Background(), fmt.Errorf("%w: top", ErrInvalidArgument))
	assert.Equal(t, CodeBadUserInput, gqlErr.Extensions["code"])
	assert.Equal(t, "invalid argument: top", gqlErr.Message)

	coded := &gqlerror.Error{Message: "bad query", Extensions: map[string]any{"code": "GRAPHQL_VALIDATION_FAILED"}}
	assert.Equal(t, "GRAPHQL_VALIDATION_FAILED", presentError(context.Background(), coded).Extensions["code"])
}
