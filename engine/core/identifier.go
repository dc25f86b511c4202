package core

import (
	"github.com/google/uuid"
)

// Identifier tags a build of a resource group (attachment sets, sessions) so
// log lines from different generations can be told apart.
type Identifier string

func NewIdentifier() Identifier {
	return Identifier(uuid.NewString())
}

// Short returns the first block of the identifier, enough for log lines.
func (i Identifier) Short() string {
	if len(i) < 8 {
		return string(i)
	}
	return string(i[:8])
}
