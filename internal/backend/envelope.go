package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// list accepts either a bare JSON array or an envelope exposing the array
// under "data". Anything else decodes as an empty list.
type list []json.RawMessage

func (l *list) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*l = nil
		return nil
	}
	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
	case '{':
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return err
		}
		env.Data = bytes.TrimSpace(env.Data)
		if len(env.Data) > 0 && env.Data[0] == '[' {
			return json.Unmarshal(env.Data, (*[]json.RawMessage)(l))
		}
		*l = nil
	default:
		*l = nil
	}
	return nil
}

// single unwraps {"data": {...}} to the inner object, or keeps the object.
func single(data json.RawMessage) json.RawMessage {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(data, &env) == nil {
		if d := bytes.TrimSpace(env.Data); len(d) > 0 && d[0] == '{' {
			return d
		}
	}
	return data
}

// text is a string field that tolerates numbers and null.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, string(data) == "null":
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = text(strings.TrimSpace(s))
	default:
		if _, err := strconv.ParseFloat(string(data), 64); err == nil {
			*t = text(data)
		} else {
			*t = ""
		}
	}
	return nil
}

func first(vals ...text) string {
	for _, v := range vals {
		if v != "" {
			return string(v)
		}
	}
	return ""
}
