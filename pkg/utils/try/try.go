// Package try folds (value, error) pairs into one expression.
//
// It is meant for places where any error is fatal:
// command line set-up in main and fixtures in tests.
//
//	p := try.To(pointing.FromMS(ms, "")).OrFatal(t)
package try

// Fataler is something having method `Fatal`.
//
// For example in standard libraries: *testing.T, *log.Logger
type Fataler interface {
	Fatal(...any)
}

// Either is a pair of (T, error).
//
// When error is nil, such Either is "ok", and T value is valid.
// Otherwise, it is "no good", and T value is not valid.
type Either[T any] interface {
	// Get returns the pair as it is.
	Get() (T, error)

	// OrFatal returns T value for "ok" Either.
	//
	// Otherwise, it calls ftl.Fatal(err) .
	// If ftl has "Helper()" method (like *testing.T), that is called before `Fatal`.
	OrFatal(ftl Fataler) T

	// OrDefault returns T value for "ok" Either, or d for "no good" one.
	OrDefault(d T) T
}

func To[T any](ok T, ng error) Either[T] {
	if ng == nil {
		return tryOk[T]{ok}
	}
	return tryNg[T]{ng}
}

type tryOk[T any] struct {
	value T
}

type tryNg[T any] struct {
	err error
}

func (ok tryOk[T]) Get() (T, error) {
	return ok.value, nil
}

func (ng tryNg[T]) Get() (T, error) {
	return *new(T), ng.err
}

func (ok tryOk[T]) OrDefault(T) T {
	return ok.value
}

func (ng tryNg[T]) OrDefault(d T) T {
	return d
}

func (ok tryOk[T]) OrFatal(Fataler) T {
	return ok.value
}

func (ng tryNg[T]) OrFatal(ftl Fataler) T {
	if hlp, ok := ftl.(interface{ Helper() }); ok {
		hlp.Helper()
	}
	ftl.Fatal(ng.err)

	return *new(T)
}
