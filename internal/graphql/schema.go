// Package graphql serves the catalog over GraphQL. Both the English and the
// Spanish root field names resolve to the same catalog operations.
package graphql

import (
	"context"
	"strings"
	"time"

	"github.com/graphql-go/graphql"

	"github.com/org/servercatalog/internal/catalog"
	"github.com/org/servercatalog/internal/policy"
	"github.com/org/servercatalog/internal/validation"
	"github.com/org/servercatalog/pkg/models"
)

// Request is the JSON body of a GraphQL call.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// CreatedFunc is called after a mutation adds a product.
type CreatedFunc func(ctx context.Context, p *models.Product)

// ValidationError carries field-level messages from the product schema.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "invalid product data: " + strings.Join(e.Details, "; ")
}

type principalKey struct{}

func principalFrom(ctx context.Context) *models.Principal {
	p, _ := ctx.Value(principalKey{}).(*models.Principal)
	return p
}

var selfType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Self",
	Fields: graphql.Fields{
		"link": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
	},
})

var productType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Product",
	Fields: graphql.Fields{
		"id":            &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		"titulo":        &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"descripcion":   &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"precio":        &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
		"nucleos":       &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		"ram":           &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		"disco":         &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		"cluster":       &graphql.Field{Type: graphql.String},
		"estado":        &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"fechaCreacion": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		"self":          &graphql.Field{Type: graphql.NewNonNull(selfType)},
	},
})

// productArgs are nullable so missing fields reach the product rules and
// come back with the same messages as the REST endpoints.
var productArgs = graphql.FieldConfigArgument{
	"titulo":      &graphql.ArgumentConfig{Type: graphql.String},
	"descripcion": &graphql.ArgumentConfig{Type: graphql.String},
	"precio":      &graphql.ArgumentConfig{Type: graphql.Float},
	"nucleos":     &graphql.ArgumentConfig{Type: graphql.Int},
	"ram":         &graphql.ArgumentConfig{Type: graphql.Int},
	"disco":       &graphql.ArgumentConfig{Type: graphql.Int},
	"cluster":     &graphql.ArgumentConfig{Type: graphql.String},
	"estado":      &graphql.ArgumentConfig{Type: graphql.String},
}

// object is the resolver view of p; the default field resolver reads map keys.
func object(p *models.Product) map[string]any {
	obj := map[string]any{
		"id":            p.ID,
		"titulo":        p.Title,
		"descripcion":   p.Description,
		"precio":        p.Price,
		"nucleos":       p.Cores,
		"ram":           p.Memory,
		"disco":         p.Disk,
		"estado":        p.Status,
		"fechaCreacion": p.CreatedAt.UTC().Format(time.RFC3339),
		"self":          map[string]any{"link": p.Self.Link},
	}
	if p.Cluster != "" {
		obj["cluster"] = p.Cluster
	}
	return obj
}

// Executor runs GraphQL requests against the catalog.
type Executor struct {
	repo      catalog.Repository
	onCreated CreatedFunc
	schema    graphql.Schema
}

func NewExecutor(repo catalog.Repository, onCreated CreatedFunc) (*Executor, error) {
	e := &Executor{repo: repo, onCreated: onCreated}

	list := &graphql.Field{Type: graphql.NewList(productType), Resolve: e.products}
	create := &graphql.Field{Type: productType, Args: productArgs, Resolve: e.createProduct}

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: graphql.Fields{"products": list, "productos": list},
		}),
		Mutation: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Mutation",
			Fields: graphql.Fields{"createProduct": create, "createProducto": create},
		}),
	})
	if err != nil {
		return nil, err
	}
	e.schema = schema
	return e, nil
}

// Execute runs req on behalf of principal. A result with errors and no data
// means the document never executed (syntax, validation or operation name).
func (e *Executor) Execute(ctx context.Context, principal *models.Principal, req Request) *graphql.Result {
	return graphql.Do(graphql.Params{
		Schema:         e.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        context.WithValue(ctx, principalKey{}, principal),
	})
}

func (e *Executor) products(p graphql.ResolveParams) (any, error) {
	if err := policy.Require(principalFrom(p.Context), models.PermReadProducts); err != nil {
		return nil, err
	}
	list, err := e.repo.List(p.Context)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(list))
	for i := range list {
		out[i] = object(&list[i])
	}
	return out, nil
}

func (e *Executor) createProduct(p graphql.ResolveParams) (any, error) {
	if err := policy.Require(principalFrom(p.Context), models.PermCreateProducts); err != nil {
		return nil, err
	}

	// The product rules read numbers the way encoding/json decodes them.
	data := make(map[string]any, len(p.Args))
	for k, v := range p.Args {
		if n, ok := v.(int); ok {
			v = float64(n)
		}
		data[k] = v
	}
	draft, res := validation.ValidateCreate(data)
	if !res.Valid {
		return nil, &ValidationError{Details: res.Errors}
	}

	created, err := e.repo.Create(p.Context, draft)
	if err != nil {
		return nil, err
	}
	if e.onCreated != nil {
		e.onCreated(p.Context, created)
	}
	return object(created), nil
}
