package view

import (
	"fmt"
)

type ErrConfig = error

func NewConfigError(name string, err error) ErrConfig {
	return fmt.Errorf("invalid configuration for view %q: %w", name, err)
}
