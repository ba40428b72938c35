package errors

import "github.com/dot42/dot42-sub006/pkg/source"

// Position represents the source location an error refers to.
type Position = source.Position
