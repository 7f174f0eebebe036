package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/99designs/gqlgen/graphql"
	"github.com/spf13/cast"
	"github.com/vektah/gqlparser/v2/ast"
)

// marshalValue renders v as the schema type typ. Nil values of non-null
// types are reported on the field path and come back as Null, which the
// enclosing object or list propagates.
func (ec *executionContext) marshalValue(ctx context.Context, typ *ast.Type, sel ast.SelectionSet, v any) graphql.Marshaler {
	if isNil(v) {
		if typ.NonNull && !graphql.HasFieldError(ctx, graphql.GetFieldContext(ctx)) {
			graphql.AddErrorf(ctx, "the requested element is null which the schema does not allow")
		}
		return graphql.Null
	}
	if typ.Elem != nil {
		return ec.marshalList(ctx, typ, sel, v)
	}

	def := ec.schema.Types[typ.NamedType]
	if def == nil {
		graphql.AddErrorf(ctx, "unknown type %s", typ.NamedType)
		return graphql.Null
	}
	switch def.Kind {
	case ast.Object:
		return ec.marshalObject(ctx, def, sel, v)
	case ast.Scalar, ast.Enum:
		m, err := marshalScalar(def.Name, v)
		if err != nil {
			ec.Error(ctx, err)
			return graphql.Null
		}
		return m
	default:
		graphql.AddErrorf(ctx, "cannot marshal %s values", def.Kind)
		return graphql.Null
	}
}

func (ec *executionContext) marshalList(ctx context.Context, typ *ast.Type, sel ast.SelectionSet, v any) graphql.Marshaler {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		graphql.AddErrorf(ctx, "expected a list for %s, got %T", typ.String(), v)
		return graphql.Null
	}

	ret := make(graphql.Array, rv.Len())
	for i := range ret {
		item := rv.Index(i).Interface()
		fc := &graphql.FieldContext{
			Index:  &i,
			Result: item,
		}
		ctx := graphql.WithFieldContext(ctx, fc)
		ret[i] = ec.marshalValue(ctx, typ.Elem, sel, item)
	}

	if typ.Elem.NonNull {
		for _, e := range ret {
			if e == graphql.Null {
				return graphql.Null
			}
		}
	}
	return ret
}

func (ec *executionContext) marshalObject(ctx context.Context, def *ast.Definition, sel ast.SelectionSet, obj any) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, []string{def.Name})
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		if field.Name == "__typename" {
			out.Values[i] = graphql.MarshalString(def.Name)
			continue
		}
		out.Values[i] = ec.resolveObjectField(ctx, def.Name, field, obj)
		if out.Values[i] == graphql.Null && field.Definition.Type.NonNull {
			out.Invalids++
		}
	}
	if out.Invalids > 0 {
		return graphql.Null
	}
	return out
}

func (ec *executionContext) resolveObjectField(ctx context.Context, typeName string, field graphql.CollectedField, obj any) graphql.Marshaler {
	return graphql.ResolveField(
		ctx,
		ec.OperationContext,
		field,
		func(ctx context.Context, field graphql.CollectedField) (*graphql.FieldContext, error) {
			return &graphql.FieldContext{
				Object:     typeName,
				Field:      field,
				IsMethod:   false,
				IsResolver: false,
			}, nil
		},
		func(ctx context.Context) (any, error) {
			v, ok := structField(obj, field.Name)
			if !ok {
				return nil, fmt.Errorf("%s.%s is not bound to %T", typeName, field.Name, obj)
			}
			if isNil(v) {
				return nil, nil
			}
			return v, nil
		},
		nil,
		func(ctx context.Context, sel ast.SelectionSet, v any) graphql.Marshaler {
			return ec.marshalValue(ctx, field.Definition.Type, sel, v)
		},
		true,
		field.Definition.Type.NonNull,
	)
}

func marshalScalar(name string, v any) (graphql.Marshaler, error) {
	if name == "JSON" {
		// encode eagerly so a bad value surfaces as a field error
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return graphql.WriterFunc(func(w io.Writer) { _, _ = w.Write(data) }), nil
	}
	v = indirect(v)
	switch name {
	case "Int":
		n, err := cast.ToIntE(v)
		if err != nil {
			return nil, err
		}
		return graphql.MarshalInt(n), nil
	case "Float":
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, err
		}
		return graphql.MarshalFloat(f), nil
	case "Boolean":
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, err
		}
		return graphql.MarshalBoolean(b), nil
	default:
		// String, ID and enums
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, err
		}
		return graphql.MarshalString(s), nil
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func indirect(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	return rv.Interface()
}

// jsonFields caches, per struct type, the field index of every json tag.
var jsonFields sync.Map

func structField(obj any, name string) (any, bool) {
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}

	idx, ok := fieldIndex(rv.Type())[name]
	if !ok {
		return nil, false
	}
	return rv.Field(idx).Interface(), true
}

func fieldIndex(t reflect.Type) map[string]int {
	if cached, ok := jsonFields.Load(t); ok {
		return cached.(map[string]int)
	}
	index := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == "" || tag == "-" {
			continue
		}
		index[tag] = i
	}
	jsonFields.Store(t, index)
	return index
}
