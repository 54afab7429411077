package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeList decodes a JSON array payload. null, objects and scalars are
// rejected so a malformed response never reaches the record store.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 || body[0] != '[' {
		return nil, fmt.Errorf("%w: expected an array", ErrMalformedResponse)
	}
	var list []T
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if list == nil {
		list = []T{}
	}
	return list, nil
}
