package config

import (
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Duration is a time.Duration which is represented in JSON documents as a string
// understood by time.ParseDuration, e.g. "1m30s". Plain numbers are treated as seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return jsoniter.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] != '"' {
		seconds, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return errors.Wrap(err, "bad duration")
		}

		*d = Duration(seconds * float64(time.Second))
		return nil
	}

	var str string
	if err := jsoniter.Unmarshal(data, &str); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(str)
	if err != nil {
		return errors.Wrap(err, "bad duration")
	}

	*d = Duration(parsed)
	return nil
}
