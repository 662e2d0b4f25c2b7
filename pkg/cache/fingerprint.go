package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint returns a stable digest of args.
//
// args is serialized to JSON and re-encoded through a generic value, so map key
// order and struct field order do not affect the result; only the values do.
func Fingerprint(args any) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", err
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
