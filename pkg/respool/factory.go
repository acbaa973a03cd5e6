package respool

import "context"

// Factory builds and checks resources of one kind (database connections, cache
// clients, ...). Make is called at warm-up and whenever a resource fails
// validation. Validate is called by the recycler off the caller's path.
type Factory[R any] interface {
	Make(ctx context.Context) (R, error)
	Validate(ctx context.Context, r R) bool
}

// Destroyer is implemented by factories whose resources hold something that
// must be released explicitly, such as a network connection.
type Destroyer[R any] interface {
	Destroy(r R)
}

// Funcs adapts plain functions to Factory and Destroyer.
// A nil ValidateFunc treats every resource as valid; a nil DestroyFunc is a no-op.
type Funcs[R any] struct {
	MakeFunc     func(ctx context.Context) (R, error)
	ValidateFunc func(ctx context.Context, r R) bool
	DestroyFunc  func(r R)
}

func (f Funcs[R]) Make(ctx context.Context) (R, error) {
	return f.MakeFunc(ctx)
}

func (f Funcs[R]) Validate(ctx context.Context, r R) bool {
	if f.ValidateFunc == nil {
		return true
	}
	return f.ValidateFunc(ctx, r)
}

func (f Funcs[R]) Destroy(r R) {
	if f.DestroyFunc != nil {
		f.DestroyFunc(r)
	}
}
