package core

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ApplyInMask returns a copy of the document keeping only the listed
// top-level fields, preserving their original order. An empty key list
// returns the document unchanged.
func ApplyInMask(raw []byte, keys []string) []byte {
	if len(keys) == 0 {
		return append([]byte(nil), raw...)
	}
	keep := make(map[string]bool, len(keys))
	for _, k := range keys {
		keep[k] = true
	}
	out := []byte("{}")
	gjson.ParseBytes(raw).ForEach(func(k, v gjson.Result) bool {
		if keep[k.String()] {
			out, _ = sjson.SetRawBytes(out, escapePath(k.String()), []byte(v.Raw))
		}
		return true
	})
	return out
}

// ApplyOutMask returns a copy of the document with the listed top-level
// fields removed.
func ApplyOutMask(raw []byte, keys []string) []byte {
	out := append([]byte(nil), raw...)
	for _, k := range keys {
		out, _ = sjson.DeleteBytes(out, escapePath(k))
	}
	return out
}
