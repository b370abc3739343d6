package content

import (
	"encoding/json"
	"fmt"
)

const (
	valueText   = "text"
	valueMedia  = "media"
	valueEntity = "entity"
)

type wireValue struct {
	Type   string          `json:"type"`
	Text   *string         `json:"text,omitempty"`
	Media  *MediaReference `json:"media,omitempty"`
	Entity *Entity         `json:"entity,omitempty"`
}

type wireField struct {
	ID     string      `json:"id"`
	Values []wireValue `json:"values"`
}

// MarshalJSON tags each value with its type so it can be decoded again.
func (f Field) MarshalJSON() ([]byte, error) {
	out := wireField{ID: f.ID, Values: make([]wireValue, 0, len(f.Values))}
	for _, v := range f.Values {
		switch val := v.(type) {
		case Text:
			s := string(val)
			out.Values = append(out.Values, wireValue{Type: valueText, Text: &s})
		case MediaReference:
			m := val
			out.Values = append(out.Values, wireValue{Type: valueMedia, Media: &m})
		case Entity:
			e := val
			out.Values = append(out.Values, wireValue{Type: valueEntity, Entity: &e})
		default:
			return nil, fmt.Errorf("field %q: unsupported value %T", f.ID, v)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes values written by MarshalJSON.
func (f *Field) UnmarshalJSON(data []byte) error {
	var in wireField
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	f.ID = in.ID
	f.Values = make([]Value, 0, len(in.Values))
	for i, wv := range in.Values {
		switch {
		case wv.Type == valueText && wv.Text != nil:
			f.Values = append(f.Values, Text(*wv.Text))
		case wv.Type == valueMedia && wv.Media != nil:
			f.Values = append(f.Values, *wv.Media)
		case wv.Type == valueEntity && wv.Entity != nil:
			f.Values = append(f.Values, *wv.Entity)
		default:
			return fmt.Errorf("field %q value %d: unknown type %q", in.ID, i, wv.Type)
		}
	}
	return nil
}
