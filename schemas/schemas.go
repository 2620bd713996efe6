// Package schemas embeds the JSON schemas for every artifact buildstamp writes.
package schemas

import _ "embed"

//go:embed v1/buildinfo/build.schema.json
var BuildRecordV1 []byte
