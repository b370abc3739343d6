package content

// Value is a single field value. The set of implementations is closed:
// Text, MediaReference and Entity.
type Value interface {
	isValue()
}

// Text is a plain string value.
type Text string

// MediaReference points at a stored binary asset.
type MediaReference struct {
	StorageID string `json:"storage_id"`
	AltText   string `json:"alt"`
	Title     string `json:"title"`
}

// Field is one named field and its values in append order.
type Field struct {
	ID     string  `json:"id"`
	Values []Value `json:"values"`
}

// Entity is a built content entity. Fields keep the order in which they were first appended.
type Entity struct {
	Kind   string  `json:"kind"`
	Fields []Field `json:"fields"`
}

func (Text) isValue()           {}
func (MediaReference) isValue() {}
func (Entity) isValue()         {}

// Values returns the values appended to field id.
func (e Entity) Values(id string) []Value {
	for _, f := range e.Fields {
		if f.ID == id {
			return f.Values
		}
	}
	return nil
}

// FirstText returns the first Text value of field id.
func (e Entity) FirstText(id string) (string, bool) {
	for _, v := range e.Values(id) {
		if t, ok := v.(Text); ok {
			return string(t), true
		}
	}
	return "", false
}

// Empty reports whether no field received a value.
func (e Entity) Empty() bool {
	for _, f := range e.Fields {
		if len(f.Values) > 0 {
			return false
		}
	}
	return true
}
