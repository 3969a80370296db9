package bizdata

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexInt decodes from a JSON number or a numeric string. WeChat sends
// fields such as sex and gender either way depending on the endpoint.
// Values that are neither decode to 0.
type FlexInt int64

func (n *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = FlexInt(v)
	return nil
}
