// Package blobstore issues presigned upload URLs for case attachments.
package blobstore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Signer produces a presigned URL a client can PUT an object to.
type Signer interface {
	SignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}

// ObjectKey builds the storage key for a case attachment. Filenames are
// sanitized to their base name so clients cannot steer the key outside the
// case prefix.
func ObjectKey(caseID uuid.UUID, kind, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	return fmt.Sprintf("cases/%s/%s/%s-%s", caseID, kind, uuid.New(), base)
}
