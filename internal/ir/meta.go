package ir

// Well-known cell metadata keys.
const (
	MetaID    = "id"
	MetaOwner = "owner"
	MetaType  = "type"
	MetaScore = "score"
)

// String returns the string stored at key, if any.
func (obj IRObject) String(key string) (string, bool) {
	s, ok := obj[key].(IRString)
	return string(s), ok
}

// Int returns the integer stored at key, or 0.
func (obj IRObject) Int(key string) int64 {
	n, _ := obj[key].(IRInt)
	return int64(n)
}

// Clone returns a shallow copy. Nested values are shared; they are never
// mutated in place.
func (obj IRObject) Clone() IRObject {
	if obj == nil {
		return nil
	}
	out := make(IRObject, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}

// With returns a copy with key set to v.
func (obj IRObject) With(key string, v IRValue) IRObject {
	out := obj.Clone()
	if out == nil {
		out = IRObject{}
	}
	out[key] = v
	return out
}

// Without returns a copy with key removed, or nil when nothing remains.
func (obj IRObject) Without(key string) IRObject {
	if _, ok := obj[key]; !ok {
		return obj
	}
	out := obj.Clone()
	delete(out, key)
	if len(out) == 0 {
		return nil
	}
	return out
}

// Compact drops null entries and returns nil for an empty object.
func (obj IRObject) Compact() IRObject {
	var out IRObject
	for k, v := range obj {
		if _, null := v.(IRNull); null || v == nil {
			continue
		}
		if out == nil {
			out = make(IRObject, len(obj))
		}
		out[k] = v
	}
	return out
}
