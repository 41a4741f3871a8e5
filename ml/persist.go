package ml

import (
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
)

func saveJSON(path string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode model")
	}
	return os.WriteFile(path, data, 0o600)
}

func loadJSON(path string, payload interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}

func checkKind(got, want string) error {
	if got != want {
		return errors.Newf("artifact holds %q, expected %q", got, want)
	}
	return nil
}

func errInvalidSnapshot(variant Variant) error {
	return errors.Newf("%s artifact is inconsistent", variant)
}
