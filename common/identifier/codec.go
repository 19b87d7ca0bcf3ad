// Package identifier mints and parses the scan payloads printed on QR
// labels. Parsing is total: any input decodes to an Identifier or to
// ok == false, never to a panic or error. Decoding needs no network access.
package identifier

import (
	"fmt"
	mrand "math/rand"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farmtrace/provenance/common/models"
)

const (
	segProduct = "p"
	segBatch   = "b"

	legacyPrefix  = "verify"
	legacyProduct = "product"
	legacyBatch   = "batch"
)

// newUUID is swappable so tests can force the fallback nonce path.
var newUUID = uuid.NewRandom

// Codec mints canonical scan URLs for one deployment host and decodes
// scanned text back into identifiers.
type Codec struct {
	base string
}

// New returns a codec minting against baseURL, e.g. "https://scan.farmtrace.in".
func New(baseURL string) *Codec {
	return &Codec{base: strings.TrimRight(baseURL, "/")}
}

// Mint issues a fresh identifier for the given subject. The nonce comes
// from a cryptographically strong source; when that source is unavailable
// the codec falls back to a timestamp plus pseudo-random composite and
// marks the identifier with fallback assurance so issuance records it.
func (c *Codec) Mint(kind models.IdentifierKind, id uint64) (models.Identifier, error) {
	var seg string
	switch kind {
	case models.KindProduct:
		seg = segProduct
	case models.KindBatch:
		seg = segBatch
	default:
		return models.Identifier{}, fmt.Errorf("cannot mint identifier for kind %q", kind)
	}

	nonce, assurance := newNonce()
	return models.Identifier{
		Kind:      kind,
		ID:        id,
		Nonce:     nonce,
		URL:       fmt.Sprintf("%s/%s/%d/%s", c.base, seg, id, nonce),
		Assurance: assurance,
	}, nil
}

func newNonce() (string, models.Assurance) {
	if u, err := newUUID(); err == nil {
		return u.String(), models.AssuranceStrong
	}
	nonce := fmt.Sprintf("%d-%06d", time.Now().UnixNano(), mrand.Intn(1_000_000))
	return nonce, models.AssuranceFallback
}

// Parse decodes scanned text. It accepts the canonical short form
// <base>/p/<id>/<nonce> and <base>/b/<id>/<nonce>, with or without the
// scheme and host, plus the legacy verbose form /verify/product/<id> and
// /verify/batch/<id>. Anything else, including shapes whose id segment is
// not a non-negative integer, yields ok == false.
func Parse(text string) (models.Identifier, bool) {
	u, err := url.Parse(strings.TrimSpace(text))
	if err != nil {
		return models.Identifier{}, false
	}

	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	segs := splitPath(path)

	switch {
	case len(segs) == 3 && (segs[0] == segProduct || segs[0] == segBatch):
		id, err := strconv.ParseUint(segs[1], 10, 64)
		if err != nil {
			return models.Identifier{}, false
		}
		kind := models.KindProduct
		if segs[0] == segBatch {
			kind = models.KindBatch
		}
		return models.Identifier{Kind: kind, ID: id, Nonce: segs[2]}, true

	case len(segs) == 3 && segs[0] == legacyPrefix:
		id, err := strconv.ParseUint(segs[2], 10, 64)
		if err != nil {
			return models.Identifier{}, false
		}
		switch segs[1] {
		case legacyProduct:
			return models.Identifier{Kind: models.KindProduct, ID: id}, true
		case legacyBatch:
			return models.Identifier{Kind: models.KindBatch, ID: id}, true
		}
	}
	return models.Identifier{}, false
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}
