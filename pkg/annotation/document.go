package annotation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Object is a JSON object that remembers its key order. Values are kept as
// raw JSON so sections this package does not interpret are written back
// exactly as they were read.
type Object struct {
	keys   []string
	values map[string]json.RawMessage
}

// NewObject returns an empty object
func NewObject() *Object {
	return &Object{values: map[string]json.RawMessage{}}
}

// Len returns the number of keys
func (o *Object) Len() int { return len(o.keys) }

// Keys returns the keys in document order
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Has reports whether key is present
func (o *Object) Has(key string) bool {
	_, ok := o.values[key]
	return ok
}

// Get returns the raw value stored under key
func (o *Object) Get(key string) (json.RawMessage, bool) {
	v, ok := o.values[key]
	return v, ok
}

// SetRaw stores a raw JSON value. New keys go to the end; existing keys keep
// their position.
func (o *Object) SetRaw(key string, raw json.RawMessage) {
	if o.values == nil {
		o.values = map[string]json.RawMessage{}
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = raw
}

// Set encodes v and stores it under key
func (o *Object) Set(key string, v any) error {
	raw, err := marshalNoEscape(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	o.SetRaw(key, raw)
	return nil
}

// Delete removes key
func (o *Object) Delete(key string) {
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i:i], o.keys[i+1:]...)
			break
		}
	}
}

// Object decodes the value under key as a nested object
func (o *Object) Object(key string) (*Object, error) {
	raw, ok := o.values[key]
	if !ok {
		return nil, fmt.Errorf("missing key %q", key)
	}
	child := NewObject()
	if err := json.Unmarshal(raw, child); err != nil {
		return nil, fmt.Errorf("key %q: %w", key, err)
	}
	return child, nil
}

// Clone copies the key list and value table. Raw values are never modified
// in place so they are shared.
func (o *Object) Clone() *Object {
	c := &Object{
		keys:   append([]string(nil), o.keys...),
		values: make(map[string]json.RawMessage, len(o.values)),
	}
	for k, v := range o.values {
		c.values[k] = v
	}
	return c
}

// GetPath follows nested objects and returns the raw value at the end
func (o *Object) GetPath(path ...string) (json.RawMessage, bool) {
	cur := o
	for i, key := range path {
		if i == len(path)-1 {
			return cur.Get(key)
		}
		next, err := cur.Object(key)
		if err != nil {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// SetPath stores v at the nested location, creating intermediate objects
// that do not exist yet
func (o *Object) SetPath(v any, path ...string) error {
	if len(path) == 0 {
		return fmt.Errorf("empty path")
	}
	if len(path) == 1 {
		return o.Set(path[0], v)
	}
	child := NewObject()
	if o.Has(path[0]) {
		var err error
		child, err = o.Object(path[0])
		if err != nil {
			return err
		}
	}
	if err := child.SetPath(v, path[1:]...); err != nil {
		return err
	}
	return o.Set(path[0], child)
}

// MarshalJSON writes the keys in their original order
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalNoEscape(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		v := o.values[k]
		if len(v) == 0 {
			v = json.RawMessage("null")
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object keeping key order. A repeated key keeps its
// first position and its last value.
func (o *Object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	o.keys = o.keys[:0]
	o.values = map[string]json.RawMessage{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		o.SetRaw(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// marshalNoEscape encodes v leaving <, > and & as they are
func marshalNoEscape(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return unescapeLineSeparators(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// encodeDocument renders the sidecar layout: 4-space indentation, raw UTF-8,
// no trailing newline
func encodeDocument(doc *Object) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return unescapeLineSeparators(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes encoding/json
// always emits back into raw runes. An escaped backslash followed by
// "u2028" is literal text and stays as it is.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		c := data[i]
		if c != '\\' || i+1 >= len(data) {
			out = append(out, c)
			continue
		}
		if data[i+1] == 'u' && i+5 < len(data) && string(data[i+2:i+5]) == "202" &&
			(data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		out = append(out, c, data[i+1])
		i++
	}
	return out
}
