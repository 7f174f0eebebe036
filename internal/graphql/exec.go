package graphql

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"sync/atomic"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

//go:embed schema.graphqls
var schemaSource string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})

// NewExecutableSchema binds the resolver to schema.graphqls. Root fields
// dispatch through queryFields and mutationFields; object fields are read
// from the model structs by json tag.
func NewExecutableSchema(r *Resolver) graphql.ExecutableSchema {
	return &executableSchema{resolver: r, schema: parsedSchema}
}

type executableSchema struct {
	resolver *Resolver
	schema   *ast.Schema
}

func (e *executableSchema) Schema() *ast.Schema {
	return e.schema
}

func (e *executableSchema) Complexity(ctx context.Context, typeName, field string, childComplexity int, rawArgs map[string]any) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)
	ec := executionContext{opCtx, e}

	var (
		typeName   string
		fields     map[string]rootField
		concurrent bool
	)
	switch opCtx.Operation.Operation {
	case ast.Query:
		typeName, fields, concurrent = "Query", queryFields, true
	case ast.Mutation:
		typeName, fields, concurrent = "Mutation", mutationFields, false
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}

	first := true
	return func(ctx context.Context) *graphql.Response {
		if !first {
			return nil
		}
		first = false
		data := ec.rootObject(ctx, typeName, opCtx.Operation.SelectionSet, fields, concurrent)
		var buf bytes.Buffer
		data.MarshalGQL(&buf)
		return &graphql.Response{Data: buf.Bytes()}
	}
}

type executionContext struct {
	*graphql.OperationContext
	*executableSchema
}

// rootField resolves one Query or Mutation field from its raw arguments.
type rootField func(ctx context.Context, r *Resolver, args map[string]any) (any, error)

func (ec *executionContext) rootObject(ctx context.Context, typeName string, sel ast.SelectionSet, resolvers map[string]rootField, concurrent bool) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, []string{typeName})
	ctx = graphql.WithFieldContext(ctx, &graphql.FieldContext{
		Object: typeName,
	})

	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		innerCtx := graphql.WithRootFieldContext(ctx, &graphql.RootFieldContext{
			Object: field.Name,
			Field:  field,
		})

		if field.Name == "__typename" {
			out.Values[i] = graphql.MarshalString(typeName)
			continue
		}

		resolve, ok := resolvers[field.Name]
		if !ok {
			// __schema and __type land here while introspection is off
			graphql.AddError(innerCtx, errors.New("introspection disabled"))
			out.Values[i] = graphql.Null
			continue
		}

		field := field
		innerFunc := func(ctx context.Context, fs *graphql.FieldSet) (res graphql.Marshaler) {
			defer func() {
				if r := recover(); r != nil {
					ec.Error(ctx, ec.Recover(ctx, r))
					res = graphql.Null
					atomic.AddUint32(&fs.Invalids, 1)
				}
			}()
			res = ec.resolveRootField(ctx, typeName, field, resolve)
			if res == graphql.Null {
				atomic.AddUint32(&fs.Invalids, 1)
			}
			return res
		}
		rrm := func(ctx context.Context) graphql.Marshaler {
			return ec.OperationContext.RootResolverMiddleware(ctx,
				func(ctx context.Context) graphql.Marshaler { return innerFunc(ctx, out) })
		}

		if concurrent {
			out.Concurrently(i, func(ctx context.Context) graphql.Marshaler { return rrm(innerCtx) })
		} else {
			out.Values[i] = rrm(innerCtx)
		}
	}
	out.Dispatch(ctx)
	if out.Invalids > 0 {
		return graphql.Null
	}
	return out
}

func (ec *executionContext) resolveRootField(ctx context.Context, typeName string, field graphql.CollectedField, resolve rootField) graphql.Marshaler {
	return graphql.ResolveField(
		ctx,
		ec.OperationContext,
		field,
		func(ctx context.Context, field graphql.CollectedField) (fc *graphql.FieldContext, err error) {
			fc = &graphql.FieldContext{
				Object:     typeName,
				Field:      field,
				IsMethod:   true,
				IsResolver: true,
			}
			defer func() {
				if r := recover(); r != nil {
					err = ec.Recover(ctx, r)
					ec.Error(ctx, err)
				}
			}()
			ctx = graphql.WithFieldContext(ctx, fc)
			fc.Args = field.ArgumentMap(ec.Variables)
			return fc, nil
		},
		func(ctx context.Context) (any, error) {
			return resolve(ctx, ec.resolver, graphql.GetFieldContext(ctx).Args)
		},
		nil,
		func(ctx context.Context, sel ast.SelectionSet, v any) graphql.Marshaler {
			return ec.marshalValue(ctx, field.Definition.Type, sel, v)
		},
		true,
		field.Definition.Type.NonNull,
	)
}

var queryFields = map[string]rootField{
	"rows": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		return r.Rows(ctx)
	},
	"filteredRows": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		filter, err := argJSON(args, "filter")
		if err != nil {
			return nil, err
		}
		return r.FilteredRows(ctx, filter)
	},
	"count": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		filter, err := argJSON(args, "filter")
		if err != nil {
			return nil, err
		}
		return r.Count(ctx, filter)
	},
	"fields": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		return r.Fields(ctx)
	},
	"aggregate": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		var input AggregateInput
		if err := argInput(args, "input", &input); err != nil {
			return nil, err
		}
		return r.Aggregate(ctx, input)
	},
	"pivot": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		rows, err := argString(args, "rows")
		if err != nil {
			return nil, err
		}
		cols, err := argString(args, "cols")
		if err != nil {
			return nil, err
		}
		filter, err := argJSON(args, "filter")
		if err != nil {
			return nil, err
		}
		return r.Pivot(ctx, rows, cols, filter)
	},
	"geoHeatMap": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		decimals, err := argOptionalInt(args, "decimals")
		if err != nil {
			return nil, err
		}
		filter, err := argJSON(args, "filter")
		if err != nil {
			return nil, err
		}
		return r.GeoHeatMap(ctx, decimals, filter)
	},
	"autocomplete": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		return r.Autocomplete(ctx)
	},
	"rules": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		return r.Rules(ctx)
	},
	"savedFilter": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		return r.SavedFilter(ctx)
	},
	"customFields": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		return r.CustomFields(ctx)
	},
	"entry": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		id, err := argString(args, "id")
		if err != nil {
			return nil, err
		}
		return r.Entry(ctx, id)
	},
	"entryDiff": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		id, err := argString(args, "id")
		if err != nil {
			return nil, err
		}
		index, err := argInt(args, "index")
		if err != nil {
			return nil, err
		}
		return r.EntryDiff(ctx, id, index)
	},
}

var mutationFields = map[string]rootField{
	"saveRules": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		rules, err := argJSON(args, "rules")
		if err != nil {
			return nil, err
		}
		return r.SaveRules(ctx, rules)
	},
	"resetRules": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		return r.ResetRules(ctx)
	},
	"saveFilter": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		filter, err := argJSON(args, "filter")
		if err != nil {
			return nil, err
		}
		return r.SaveFilter(ctx, filter)
	},
	"createCustomField": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		var input CustomFieldInput
		if err := argInput(args, "input", &input); err != nil {
			return nil, err
		}
		return r.CreateCustomField(ctx, input)
	},
	"updateCustomField": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		id, err := argString(args, "id")
		if err != nil {
			return nil, err
		}
		var input CustomFieldInput
		if err := argInput(args, "input", &input); err != nil {
			return nil, err
		}
		return r.UpdateCustomField(ctx, id, input)
	},
	"deleteCustomField": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		id, err := argString(args, "id")
		if err != nil {
			return nil, err
		}
		return r.DeleteCustomField(ctx, id)
	},
	"updateNotes": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		id, err := argString(args, "entryId")
		if err != nil {
			return nil, err
		}
		notes, err := argString(args, "notes")
		if err != nil {
			return nil, err
		}
		return r.UpdateNotes(ctx, id, notes)
	},
	"setFieldValue": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		entryID, err := argString(args, "entryId")
		if err != nil {
			return nil, err
		}
		fieldID, err := argString(args, "fieldId")
		if err != nil {
			return nil, err
		}
		value, err := argOptionalString(args, "value")
		if err != nil {
			return nil, err
		}
		return r.SetFieldValue(ctx, entryID, fieldID, value)
	},
	"exportRows": func(ctx context.Context, r *Resolver, args map[string]any) (any, error) {
		var input ExportInput
		if err := argInput(args, "input", &input); err != nil {
			return nil, err
		}
		return r.ExportRows(ctx, input)
	},
}
