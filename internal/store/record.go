package store

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/segmentio/encoding/json"
)

// EncodeRecord converts a typed row into the generic map form carried by
// feed events.
func EncodeRecord(row any) (map[string]any, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode record")
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "failed to encode record")
	}
	return rec, nil
}

// DecodeRecord decodes a generic feed record into a typed row. Field names
// follow the rows' json tags; timestamps arrive as RFC 3339 strings.
func DecodeRecord(rec map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})
	if err != nil {
		return errors.Wrap(err, "failed to build record decoder")
	}
	if err := dec.Decode(rec); err != nil {
		return errors.Wrap(err, "failed to decode record")
	}
	return nil
}
