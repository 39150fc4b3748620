package history

// Operation is an identified, transformable unit of history.
type Operation[T any] struct {
	ID   string
	Data T
}

// NewOperation creates an operation.
func NewOperation[T any](id string, data T) Operation[T] {
	return Operation[T]{ID: id, Data: data}
}

// Transformed returns a new operation with the same id and transformed data.
func (o Operation[T]) Transformed(f Transformation[T]) Operation[T] {
	return Operation[T]{ID: o.ID, Data: f(o.Data)}
}

// Transformation rewrites operation data.
type Transformation[T any] func(data T) T

// TransformationFactory builds transformations relative to another operation.
type TransformationFactory[T any] interface {
	// With returns a transformation rewriting data so it applies after
	// executed.
	With(executed T) Transformation[T]

	// Without returns a transformation rewriting data so it applies as if
	// cancelled had never been executed.
	Without(cancelled T) Transformation[T]
}

// Config injects the behavior of a SelectiveHistory.
type Config[T any] struct {
	// Apply executes data and returns it as applied. The returned value is
	// the one later given to Revert.
	Apply func(data T) T

	// Revert undoes the effect of applied data.
	Revert func(applied T)

	// BuildEmpty creates the data of an operation with no effect.
	BuildEmpty func(id string) T

	// Transformations rewrites data when the history changes around it.
	Transformations TransformationFactory[T]
}
