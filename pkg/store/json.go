package store

import "encoding/json"

// Entities are stored as an opaque JSON blob under the "data" attribute,
// the same marshal-then-store approach the teacher's BoltDB adapter uses
// for every bucket; only the indexed attributes (pk, sk, type, status, ttl)
// are projected as real DynamoDB attributes for querying.
func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshalJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
