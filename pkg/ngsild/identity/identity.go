// Package identity parses the identity paths used both as entity ids and as
// embedded references between entities.
//
// Two encodings are understood:
//
//	<collection>/<type>/<local-id>     e.g. db/Customer/42 (a leading / is allowed)
//	urn:ngsi-ld:<type>:<local-id>      e.g. urn:ngsi-ld:Device:se:servanet:lora:01
//
// The local id may contain further separators.
package identity

import (
	"fmt"
	"strings"

	"github.com/diwise/context-bridge/pkg/ngsild/errors"
)

const (
	Separator    string = "/"
	URNPrefix    string = "urn:ngsi-ld:"
	urnSeparator string = ":"
)

type Path struct {
	Collection string
	EntityType string
	LocalID    string

	urn bool
}

func New(collection, entityType, localID string) Path {
	return Path{Collection: collection, EntityType: entityType, LocalID: localID}
}

func NewURN(entityType, localID string) Path {
	return Path{Collection: strings.TrimSuffix(URNPrefix, urnSeparator), EntityType: entityType, LocalID: localID, urn: true}
}

func (p Path) String() string {
	if p.urn {
		return URNPrefix + p.EntityType + urnSeparator + p.LocalID
	}

	return strings.Join([]string{p.Collection, p.EntityType, p.LocalID}, Separator)
}

func (p Path) IsURN() bool {
	return p.urn
}

// Parse splits id into its segments. Ids with fewer than three non empty
// segments are rejected with an error matching errors.ErrMalformedReference.
func Parse(id string) (Path, error) {
	if strings.HasPrefix(id, URNPrefix) {
		segments := strings.SplitN(strings.TrimPrefix(id, URNPrefix), urnSeparator, 2)
		if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
			return Path{}, malformed(id)
		}

		return NewURN(segments[0], segments[1]), nil
	}

	segments := strings.SplitN(strings.TrimPrefix(id, Separator), Separator, 3)
	if len(segments) < 3 {
		return Path{}, malformed(id)
	}

	for _, s := range segments {
		if s == "" {
			return Path{}, malformed(id)
		}
	}

	return New(segments[0], segments[1], segments[2]), nil
}

// TypeSegment returns the entity type encoded in id
func TypeSegment(id string) (string, error) {
	p, err := Parse(id)
	if err != nil {
		return "", err
	}

	return p.EntityType, nil
}

func malformed(id string) error {
	return errors.NewMalformedReferenceError(fmt.Sprintf("identity path \"%s\" has too few segments", id))
}
