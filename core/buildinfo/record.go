package buildinfo

import (
	"bytes"
	"encoding/json"
	"fmt"

	coreerrors "github.com/davidahmann/buildstamp/core/errors"
	"github.com/davidahmann/buildstamp/core/jcs"
	schemabuildinfo "github.com/davidahmann/buildstamp/core/schema/v1/buildinfo"
	"github.com/davidahmann/buildstamp/core/schema/validate"
)

// EntryName is the archive member every target receives.
const EntryName = "build.json"

type Record = schemabuildinfo.Record

// Marshal returns the canonical (RFC 8785) JSON form of record after checking
// it against the build record schema.
func Marshal(record Record) ([]byte, error) {
	encoded, err := jcs.Canonicalize(record)
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("encode build record: %w", err), coreerrors.CategoryInternalFailure, "record_encode_failed", "report this as a bug", false)
	}
	if err := validate.BuildRecord(encoded); err != nil {
		return nil, coreerrors.InvalidInput(fmt.Errorf("build record: %w", err), "record_invalid")
	}
	return encoded, nil
}

// Parse decodes a build.json document. Unknown keys and schema violations are
// rejected so a parsed record always re-marshals to an equivalent document.
func Parse(data []byte) (Record, error) {
	if err := validate.BuildRecord(data); err != nil {
		return Record{}, coreerrors.InvalidInput(fmt.Errorf("build record: %w", err), "record_invalid")
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	var record Record
	if err := decoder.Decode(&record); err != nil {
		return Record{}, coreerrors.InvalidInput(fmt.Errorf("decode build record: %w", err), "record_decode_failed")
	}
	return record, nil
}

// Digest is the sha256 of the canonical record bytes.
func Digest(record Record) (string, error) {
	encoded, err := Marshal(record)
	if err != nil {
		return "", err
	}
	return jcs.DigestJCS(encoded)
}
