// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/crc32"

	"github.com/AleutianAI/deadwood/analysis/ast"
)

// schemaVersion is baked into every key. Bumping it after a ParseResult
// format change orphans old entries instead of misdecoding them; GC
// reclaims the space.
const schemaVersion = 1

// Key format: "parse:v{schema}:{namespace}:{sha256-hex}"
// Value format: [4-byte CRC32][gob-encoded ParseResult]

func cacheKey(namespace string, content []byte) []byte {
	sum := sha256.Sum256(content)
	return []byte(fmt.Sprintf("parse:v%d:%s:%x", schemaVersion, namespace, sum))
}

// encodeResult encodes a parse result with a CRC32 checksum prefix.
func encodeResult(res *ast.ParseResult) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(res); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}

	crc := crc32.ChecksumIEEE(buf.Bytes())

	out := make([]byte, 4+buf.Len())
	binary.BigEndian.PutUint32(out[:4], crc)
	copy(out[4:], buf.Bytes())
	return out, nil
}

// decodeResult decodes a stored entry, validating the checksum first.
// All failures are ErrCorruptEntry; the store treats them as misses.
func decodeResult(data []byte) (*ast.ParseResult, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: entry too short (%d bytes)", ErrCorruptEntry, len(data))
	}

	stored := binary.BigEndian.Uint32(data[:4])
	payload := data[4:]
	if computed := crc32.ChecksumIEEE(payload); stored != computed {
		return nil, fmt.Errorf("%w: checksum stored=%08x computed=%08x",
			ErrCorruptEntry, stored, computed)
	}

	var res ast.ParseResult
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: gob decode: %v", ErrCorruptEntry, err)
	}
	return &res, nil
}
