package relaymq

import "encoding/json"

// Serializer is a bidirectional byte<->value codec used to encode
// envelopes onto the wire and decode broker deliveries back into them.
// Swappable per spec.md §4 point 1; JSON is the default.
type Serializer interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
	ContentType() string
}

// JSONSerializer is the default Serializer implementation.
type JSONSerializer struct{}

// Encode marshals v to JSON.
func (JSONSerializer) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Decode unmarshals JSON data into v.
func (JSONSerializer) Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// ContentType returns the MIME type to set on outgoing AMQP messages.
func (JSONSerializer) ContentType() string {
	return "application/json"
}
