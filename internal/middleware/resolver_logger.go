package middleware

import (
	"context"
	"time"

	"github.com/99designs/gqlgen/graphql"

	"github.com/rpattn/trialnotes/internal/logger"
)

// ResolverLoggerExtension logs resolver execution times
type ResolverLoggerExtension struct{}

var _ interface {
	graphql.HandlerExtension
	graphql.FieldInterceptor
} = &ResolverLoggerExtension{}

// ExtensionName implements graphql.HandlerExtension
func (r *ResolverLoggerExtension) ExtensionName() string {
	return "ResolverLogger"
}

// Validate implements graphql.HandlerExtension
func (r *ResolverLoggerExtension) Validate(schema graphql.ExecutableSchema) error {
	return nil
}

// InterceptField logs the duration and error of each resolver call through
// the request logger. Plain struct field reads are not logged.
func (r *ResolverLoggerExtension) InterceptField(ctx context.Context, next graphql.Resolver) (res any, err error) {
	fc := graphql.GetFieldContext(ctx)
	if fc == nil || !fc.IsResolver {
		return next(ctx)
	}

	start := time.Now()
	res, err = next(ctx)

	event := logger.FromContext(ctx).Debug()
	if err != nil {
		event = logger.FromContext(ctx).Warn().Err(err)
	}
	event.
		Str("object", fc.Object).
		Str("field", fc.Field.Name).
		Dur("duration", time.Since(start)).
		Msg("resolver finished")
	return res, err
}
