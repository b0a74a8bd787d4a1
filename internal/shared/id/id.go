// Package id provides ULID generation for objects published on an endpoint
// and for broker-side listener records.
//
// IDs are prefixed so logs show what they name (obj_*, lsn_*) and are
// K-sortable, so the object table of an endpoint lists objects in
// publication order.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ObjectID identifies an object published on an endpoint
type ObjectID string

// ListenerID identifies a recover listener record held by a broker
type ListenerID string

const (
	ObjectPrefix   = "obj"
	ListenerPrefix = "lsn"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with monotonic, cryptographically
// seeded entropy
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewObjectID generates a new object ID
func NewObjectID() ObjectID {
	return ObjectID(Default().GenerateWithPrefix(ObjectPrefix))
}

// NewListenerID generates a new listener ID
func NewListenerID() ListenerID {
	return ListenerID(Default().GenerateWithPrefix(ListenerPrefix))
}

func (id ObjectID) String() string   { return string(id) }
func (id ListenerID) String() string { return string(id) }

// Timestamp extracts the creation time from a prefixed or bare ID
func Timestamp(s string) (time.Time, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
