// Copyright 2026 The Bridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the bridge's standard CBOR encoding
// configuration.
//
// The bridge uses two serialization formats with a clear boundary:
// JSON for the external HTTP API and on-disk state files, CBOR for the
// operator control socket. This package provides the shared CBOR
// encoding and decoding modes so every bridge package encodes
// identically without duplicating configuration.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (the control socket):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Control-socket protocol types carry `json` tags: fxamacker/cbor v2
// falls back to `json` tags when `cbor` tags are absent, so one tag
// controls field naming for both the HTTP API and the socket.
package codec
