package derive

import (
	"fmt"
)

type ErrGraph = error

func NewGraphError(err error) ErrGraph {
	return fmt.Errorf("invalid derivation graph: %w", err)
}

type ErrDuplicateName = error

func NewDuplicateNameError(name string) ErrDuplicateName {
	return fmt.Errorf("collection %q declared twice", name)
}

type ErrUndeclaredInput = error

func NewUndeclaredInputError(name, input string) ErrUndeclaredInput {
	return fmt.Errorf("collection %q references undeclared input %q", name, input)
}

type ErrUnknownTable = error

func NewUnknownTableError(table string) ErrUnknownTable {
	return fmt.Errorf("no base collection registered for table %q", table)
}
