package registry

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/alxayo/go-rornet/internal/rornet/wire"
)

// Actor stream names look like "b6b0e7ff-SomeUID-semi.truck": an optional
// mod guid, an optional UID prefix, the mod filename and the actor kind as
// the extension.
var actorNameRE = regexp.MustCompile(
	`^((?P<guid>[a-z0-9]*)-)?((.*)UID-)?(?P<name>.*)\.(?P<type>truck|car|load|airplane|boat|trailer|train|fixed)$`)

//go:embed truck_names.json
var truckNamesJSON []byte

// NameCatalogue maps lowercase mod filenames ("semi.truck") to display names.
// An empty catalogue is valid; lookups then fall back to the parsed filename.
type NameCatalogue map[string]string

// DefaultNameCatalogue returns the bundled mod catalogue.
var DefaultNameCatalogue = sync.OnceValue(func() NameCatalogue {
	nc, err := parseNameCatalogue(truckNamesJSON)
	if err != nil {
		panic("registry: bundled truck_names.json: " + err.Error())
	}
	return nc
})

// LoadNameCatalogue reads a filename to display-name map from a JSON file.
func LoadNameCatalogue(path string) (NameCatalogue, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	nc, err := parseNameCatalogue(raw)
	if err != nil {
		return nil, fmt.Errorf("name catalogue %s: %w", path, err)
	}
	return nc, nil
}

func parseNameCatalogue(raw []byte) (NameCatalogue, error) {
	m := make(map[string]string)
	if err := jsoniter.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	nc := make(NameCatalogue, len(m))
	for k, v := range m {
		nc[strings.ToLower(k)] = v
	}
	return nc, nil
}

// Pretty maps a raw actor stream name to its display name, falling back to
// the parsed filename when the catalogue has no entry.
func (nc NameCatalogue) Pretty(name string) string {
	parsed := ParseActorName(name)
	key := parsed.Filename + "." + string(parsed.Type)
	if parsed.Type == "" {
		key = parsed.Filename
	}
	if pretty, ok := nc[strings.ToLower(key)]; ok {
		return pretty
	}
	if parsed.Filename != "" {
		return parsed.Filename
	}
	return name
}

// ActorName is the parsed form of an actor stream name.
type ActorName struct {
	GUID     string
	Filename string // mod filename without guid or UID prefix
	Type     wire.ActorType
}

// ParseActorName splits an actor stream name into guid, filename and type.
// Names that do not match the convention come back with an empty Type.
func ParseActorName(name string) ActorName {
	m := actorNameRE.FindStringSubmatch(name)
	if m == nil {
		return ActorName{Filename: name}
	}
	out := ActorName{}
	for i, g := range actorNameRE.SubexpNames() {
		switch g {
		case "guid":
			out.GUID = m[i]
		case "name":
			out.Filename = m[i]
		case "type":
			out.Type = wire.ActorType(m[i])
		}
	}
	return out
}
