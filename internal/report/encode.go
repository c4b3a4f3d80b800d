package report

import (
	"bytes"
	"encoding/json"
	"math"

	"gopkg.in/yaml.v3"
)

// errorEnvelope is how a marker appears in serialized output: {"error": {...}}.
type errorEnvelope struct {
	Error *ErrorMarker `json:"error" yaml:"error"`
}

// value returns the serializable form of an entry.
func (e Entry) value() interface{} {
	switch {
	case e.Err != nil:
		return errorEnvelope{Error: e.Err}
	case e.Scalar != nil:
		return finite(*e.Scalar)
	default:
		out := make([]interface{}, len(e.Scores))
		for i, s := range e.Scores {
			out[i] = finite(s)
		}
		return out
	}
}

// finite maps NaN and infinities to nil; JSON cannot represent them.
func finite(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

type orderedField struct {
	key   string
	value interface{}
}

func marshalOrdered(fields []orderedField) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON writes the record with its keys in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(errorEnvelope{Error: r.Err})
	}
	fields := make([]orderedField, len(r.entries))
	for i, e := range r.entries {
		fields[i] = orderedField{key: e.Name, value: e.value()}
	}
	return marshalOrdered(fields)
}

// MarshalJSON writes the report as task key -> model -> record, in run order.
func (rep *Report) MarshalJSON() ([]byte, error) {
	fields := make([]orderedField, len(rep.tasks))
	for i, t := range rep.tasks {
		models := make([]orderedField, len(t.Models))
		for j, m := range t.Models {
			models[j] = orderedField{key: m.Model, value: m.Record}
		}
		raw, err := marshalOrdered(models)
		if err != nil {
			return nil, err
		}
		fields[i] = orderedField{key: t.Key, value: json.RawMessage(raw)}
	}
	return marshalOrdered(fields)
}

func mappingNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func appendPair(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
}

func encodeNode(v interface{}) (*yaml.Node, error) {
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return n, nil
}

func (r *Record) yamlNode() (*yaml.Node, error) {
	if r.Err != nil {
		return encodeNode(errorEnvelope{Error: r.Err})
	}
	m := mappingNode()
	for _, e := range r.entries {
		v, err := encodeNode(e.value())
		if err != nil {
			return nil, err
		}
		appendPair(m, e.Name, v)
	}
	return m, nil
}

// MarshalYAML keeps the same ordering guarantees as MarshalJSON.
func (r *Record) MarshalYAML() (interface{}, error) {
	return r.yamlNode()
}

// MarshalYAML keeps the same ordering guarantees as MarshalJSON.
func (rep *Report) MarshalYAML() (interface{}, error) {
	root := mappingNode()
	for _, t := range rep.tasks {
		models := mappingNode()
		for _, m := range t.Models {
			n, err := m.Record.yamlNode()
			if err != nil {
				return nil, err
			}
			appendPair(models, m.Model, n)
		}
		appendPair(root, t.Key, models)
	}
	return root, nil
}
