// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

package connection

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"

	kerrors "kqlnb/cli/internal/errors"
)

// Key is the canonical encoding of an Info: standard base64 of a JSON object
// whose keys are sorted lexicographically.
type Key string

var errUnknownKind = stderrors.New("unknown connection type")

// DecodeError describes why a key could not be decoded.
type DecodeError struct {
	Key    string
	Reason string
	Hint   string
}

func (e *DecodeError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid connection key: %s\nHint: %s", e.Reason, e.Hint)
	}
	return fmt.Sprintf("invalid connection key: %s", e.Reason)
}

func newDecodeError(key, reason, hint string) error {
	return kerrors.Wrap(kerrors.DecodeError, "decode connection key", &DecodeError{Key: key, Reason: reason, Hint: hint})
}

// Encode returns the canonical key for info.
// Two Infos describing the same target always produce the same key.
func Encode(info Info) Key {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Maps marshal with sorted keys.
	if err := enc.Encode(info.fields()); err != nil {
		// map[string]string cannot fail to marshal.
		panic(err)
	}
	return Key(base64.StdEncoding.EncodeToString(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))))
}

// Decode parses a canonical key back into an Info.
// Keys produced by other writers are accepted as long as they hold a JSON
// object; field order in the payload does not matter.
func Decode(key Key) (Info, error) {
	raw, err := base64.StdEncoding.DecodeString(string(key))
	if err != nil {
		return Info{}, newDecodeError(string(key), "malformed base64", "keys are produced by Encode")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Info{}, newDecodeError(string(key), "malformed JSON payload", "")
	}
	get := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	kind := Kind(get("type"))
	if kind == "" && get("cluster") == "" {
		return Info{}, newDecodeError(string(key), errUnknownKind.Error(), `expected "type" of azAuth or appInsights`)
	}
	info := Info{
		ID:          get("id"),
		DisplayName: get("displayName"),
		Kind:        kind,
		Cluster:     get("cluster"),
		Database:    get("database"),
	}
	switch info.Kind {
	case KindAzureAuth:
	case "":
		info.Kind = KindAzureAuth
	case KindAppInsights:
		info.Cluster, info.Database = "", ""
	default:
		return Info{}, newDecodeError(string(key), fmt.Sprintf("%s %q", errUnknownKind, kind), `expected "type" of azAuth or appInsights`)
	}
	return info, nil
}
