// Package vectorindex holds the vector index backends: pgvector, Qdrant and in-memory.
package vectorindex

import (
	"fmt"

	"github.com/google/uuid"
)

var pointNamespace = uuid.MustParse("6f1c7a52-3e0b-4d5f-9b1e-2a9d4c8e7f10")

// PointID derives a stable id for chunk ordinal of an owner's document, so
// writing the same document again overwrites its vectors instead of
// duplicating them. Equal document ids under different owners never collide.
func PointID(ownerID, documentID string, ordinal int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s:%s:%d", ownerID, documentID, ordinal))).String()
}
