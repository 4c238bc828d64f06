package wsapi

import (
	"encoding/json"

	"github.com/cheton/cnc/internal/types"
)

// decodeFirst unmarshals the first element of args into dst. The
// client protocol packs a single object argument for multi-field
// commands (open, command) rather than positional args, so this is
// the common case; it returns false if args is empty or malformed.
func decodeFirst(args []json.RawMessage, dst interface{}) bool {
	if len(args) == 0 {
		return false
	}
	return json.Unmarshal(args[0], dst) == nil
}

func firstString(args []json.RawMessage) string {
	if len(args) == 0 {
		return ""
	}
	var s string
	json.Unmarshal(args[0], &s)
	return s
}

func firstTwoStrings(args []json.RawMessage) (string, string) {
	var a, b string
	if len(args) > 0 {
		json.Unmarshal(args[0], &a)
	}
	if len(args) > 1 {
		json.Unmarshal(args[1], &b)
	}
	return a, b
}

type openRequest struct {
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	Baud    int    `json:"baud"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Dialect string `json:"dialect"`
}

func openDescriptor(req openRequest) types.ConnectionDescriptor {
	return types.ConnectionDescriptor{
		Kind: types.TransportKind(req.Kind),
		Path: req.Path,
		Baud: req.Baud,
		Host: req.Host,
		Port: req.Port,
	}
}

func firmwareKind(name string) types.FirmwareKind {
	return types.FirmwareKind(name)
}
