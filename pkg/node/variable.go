package node

import (
	"context"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/gosnippet/pkg/position"
)

// Resolver looks up variable values. ok is false for names it does not know.
type Resolver interface {
	Resolve(ctx context.Context, name string) (value string, ok bool, err error)
}

// Variable is $name, ${name}, ${name/re/fmt/flags} or ${name:default}.
type Variable struct {
	base
	Name      string
	Transform *Transform
	Children  []Node

	value    string
	resolved bool
	looked   bool
}

func NewVariable(name string, transform *Transform, children []Node) *Variable {
	v := &Variable{Name: name, Transform: transform, Children: children}
	adopt(v, children)
	return v
}

func (v *Variable) Kind() Kind { return KindVariable }

// Resolve looks the variable up once; later calls keep the first answer. An
// unknown or empty value leaves the variable rendering its default.
func (v *Variable) Resolve(ctx context.Context, r Resolver) error {
	if v.looked {
		return nil
	}
	v.looked = true
	if r == nil {
		return nil
	}
	value, ok, err := r.Resolve(ctx, v.Name)
	if err != nil {
		return errors.Errorf("resolving variable %s: %w", v.Name, err)
	}
	if !ok || value == "" {
		return nil
	}
	if v.Transform != nil {
		value = v.Transform.Apply(value)
	}
	v.value = value
	v.resolved = true
	return nil
}

func (v *Variable) Resolved() bool {
	return v.resolved
}

func (v *Variable) Text(focus int) string {
	if v.resolved {
		return v.value
	}
	return renderAll(v.Children, focus)
}

func (v *Variable) UpdateRange(ctx context.Context, ed Editor, start position.Place, focus int) (position.Place, error) {
	if v.resolved || len(v.Children) == 0 {
		return v.setRange(position.CalcRange(start, v.Text(focus))), nil
	}
	end, err := layoutAll(ctx, ed, v.Children, start, focus)
	if err != nil {
		return end, err
	}
	return v.setRange(position.Range{Start: start, End: end}), nil
}

// ResolveVariables resolves every variable in the tree, including those in
// defaults.
func (s *Snippet) ResolveVariables(ctx context.Context, r Resolver) error {
	var errs []error
	Walk(s, func(n Node) {
		if v, ok := n.(*Variable); ok {
			if err := v.Resolve(ctx, r); err != nil {
				errs = append(errs, err)
			}
		}
	})
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
