package generator

import (
	"path"

	"github.com/google/uuid"
)

// Generator produces a new value of type T on every call to Next.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDV4Generator produces UUIDv4 strings. Conversion jobs use them as ids.
type UUIDV4Generator struct{}

func (g *UUIDV4Generator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

var _ Generator[string] = &UUIDV4Generator{}

// KeyGenerator derives object keys of the form "<prefix>/<id>.au" from an
// underlying id generator.
type KeyGenerator struct {
	Prefix string
	IDs    Generator[string]
}

func (g *KeyGenerator) Next() (string, error) {
	id, err := g.IDs.Next()
	if err != nil {
		return "", err
	}
	return path.Join(g.Prefix, id+".au"), nil
}

var _ Generator[string] = &KeyGenerator{}
