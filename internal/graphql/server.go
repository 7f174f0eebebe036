package graphql

import (
	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/extension"
	"github.com/99designs/gqlgen/graphql/handler/lru"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/rpattn/trialnotes/internal/middleware"
)

// ComplexityLimit bounds the field count of one operation.
const ComplexityLimit = 500

// NewServer creates the GraphQL server for the resolver: GET and POST
// transports, a parsed query cache, resolver logging and coded errors.
func NewServer(resolver *Resolver) *handler.Server {
	srv := handler.New(NewExecutableSchema(resolver))

	srv.AddTransport(transport.Options{})
	srv.AddTransport(transport.GET{})
	srv.AddTransport(transport.POST{})

	srv.SetQueryCache(lru.New[*ast.QueryDocument](1000))
	srv.SetErrorPresenter(presentError)

	srv.Use(extension.FixedComplexityLimit(ComplexityLimit))
	srv.Use(&middleware.ResolverLoggerExtension{})

	return srv
}
