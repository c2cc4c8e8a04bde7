package schema

import "errors"

// ErrUnknownColumn is returned when a key does not name a schema column.
var ErrUnknownColumn = errors.New("unknown column")

// Validator checks a cell value. On success it returns the value to store,
// which may be normalized. On failure the error text is the message shown
// next to the cell.
type Validator interface {
	Validate(value string) (string, error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(value string) (string, error)

func (f ValidatorFunc) Validate(value string) (string, error) {
	return f(value)
}

// Chain runs validators in order, feeding each the previous output. The
// first failure stops the chain.
func Chain(vs ...Validator) Validator {
	switch len(vs) {
	case 0:
		return nil
	case 1:
		return vs[0]
	}
	return ValidatorFunc(func(value string) (string, error) {
		for _, v := range vs {
			var err error
			if value, err = v.Validate(value); err != nil {
				return "", err
			}
		}
		return value, nil
	})
}

// Check wraps a predicate as a non-normalizing validator.
func Check(ok func(string) bool, message string) Validator {
	return ValidatorFunc(func(value string) (string, error) {
		if !ok(value) {
			return "", errors.New(message)
		}
		return value, nil
	})
}

// Normalize wraps a transform that always succeeds.
func Normalize(f func(string) string) Validator {
	return ValidatorFunc(func(value string) (string, error) {
		return f(value), nil
	})
}
