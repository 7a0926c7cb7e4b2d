package badger

import "strings"

// Key Namespace
// =============
//
// Documents live under a single prefix so the database can later hold other
// record types without collisions, and so List is one prefix scan:
//
// Data Type   Prefix   Key Format    Value Type
// ==================================================
// Document    "f:"     f:<name>      fileRecord (JSON)

const prefixFile = "f:"

func keyFile(name string) []byte {
	return []byte(prefixFile + name)
}

func nameFromKey(key []byte) string {
	return strings.TrimPrefix(string(key), prefixFile)
}
