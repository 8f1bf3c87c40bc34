package surreal

import (
	"encoding/json"
	"fmt"

	"github.com/bobmcallan/nommer/internal/job"
)

func marshalOptions(o job.Options) (string, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("marshal job options: %w", err)
	}
	return string(b), nil
}

func unmarshalOptions(s string) (job.Options, error) {
	var o job.Options
	if s == "" {
		return o, nil
	}
	if err := json.Unmarshal([]byte(s), &o); err != nil {
		return o, fmt.Errorf("unmarshal job options: %w", err)
	}
	return o, nil
}
