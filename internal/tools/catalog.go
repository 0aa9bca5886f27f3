// Package tools — каталог операций над IdP: схемы, проверка прав, исполнение, аудит.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/xela07ax/idp-admin-gateway/internal/audit"
	"github.com/xela07ax/idp-admin-gateway/internal/connectors/okta"
	"github.com/xela07ax/idp-admin-gateway/internal/policy"
)

// Kind — роль операции в каталоге.
type Kind string

const (
	KindRead    Kind = "read"
	KindPreview Kind = "preview"
	KindExecute Kind = "execute"
)

// Handler исполняет операцию над сырым JSON-входом.
type Handler func(ctx context.Context, raw json.RawMessage) (interface{}, error)

// Operation регистрируется один раз при старте и больше не меняется.
type Operation struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        Kind   `json:"kind"`
	// Destructive — операция из пары preview/execute.
	Destructive bool    `json:"destructive"`
	Invoke      Handler `json:"-"`
}

// IdP — контракт клиента провайдера, который нужен каталогу.
type IdP interface {
	Get(ctx context.Context, path string, query url.Values) (*okta.Response, error)
	Post(ctx context.Context, path string, query url.Values, body interface{}) (*okta.Response, error)
	Put(ctx context.Context, path string, query url.Values, body interface{}) (*okta.Response, error)
	Delete(ctx context.Context, path string, query url.Values) (*okta.Response, error)
}

type Auditor interface {
	Audit(ctx context.Context, e audit.Entry)
}

type Deps struct {
	IdP     IdP
	Guard   policy.Enforcer
	Auditor Auditor
	Clock   func() time.Time
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

// Catalog — упорядоченный реестр операций.
type Catalog struct {
	ops    []*Operation
	byName map[string]*Operation
}

func newCatalog() *Catalog {
	return &Catalog{byName: make(map[string]*Operation)}
}

// NewCatalog собирает полный набор операций. Единственная точка композиции.
func NewCatalog(d Deps) *Catalog {
	c := newCatalog()
	registerReadTools(c, d)
	registerAdminTools(c, d)
	return c
}

func (c *Catalog) register(ops ...*Operation) {
	for _, op := range ops {
		if _, dup := c.byName[op.Name]; dup {
			panic(fmt.Sprintf("tools: duplicate operation %q", op.Name))
		}
		c.byName[op.Name] = op
		c.ops = append(c.ops, op)
	}
}

func (c *Catalog) Lookup(name string) (*Operation, bool) {
	op, ok := c.byName[name]
	return op, ok
}

func (c *Catalog) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Operations возвращает операции в порядке регистрации.
func (c *Catalog) Operations() []*Operation {
	return append([]*Operation(nil), c.ops...)
}

// run — общий конвейер охраняемого вызова: guard -> action -> audit.
// Любой исход (отказ guard, ошибка провайдера, успех) оставляет ровно одну запись аудита.
func (d Deps) run(ctx context.Context, name string, args interface{}, action func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	start := d.now()
	ctx, trace := okta.WithRequestTrace(ctx)

	if err := d.Guard.EnsureAllowed(ctx, name); err != nil {
		d.Auditor.Audit(ctx, audit.Entry{
			Tool:     name,
			Inputs:   args,
			Err:      err,
			Duration: d.now().Sub(start),
		})
		return nil, err
	}

	result, err := action(ctx)
	entry := audit.Entry{
		Tool:          name,
		Inputs:        args,
		Err:           err,
		OktaRequestID: trace.Last(),
		Duration:      d.now().Sub(start),
	}
	if err == nil {
		entry.Result = result
	}
	d.Auditor.Audit(ctx, entry)

	if err != nil {
		return nil, err
	}
	return result, nil
}
