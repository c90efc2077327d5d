package registry

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/audit-engine/internal/model"
)

//go:embed seed.yaml
var builtinSeed []byte

// SeedPolicy controls startup seeding.
type SeedPolicy string

const (
	// SeedIfEmpty seeds only when no audit history exists.
	SeedIfEmpty SeedPolicy = "if_empty"
	// SeedAlways reseeds on every startup and refreshes LastAudited.
	SeedAlways SeedPolicy = "always"
	// SeedOff disables seeding.
	SeedOff SeedPolicy = "off"
)

// Dataset maps a bare handle to its canned audit record.
type Dataset map[string]model.SeededAudit

// BuiltinSeed returns the embedded demo dataset.
func BuiltinSeed() (Dataset, error) {
	return ParseSeed(builtinSeed)
}

// LoadSeedFile reads a dataset in the same YAML layout as the built-in one.
func LoadSeedFile(path string) (Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read seed file")
	}
	return ParseSeed(data)
}

// ParseSeed decodes a YAML dataset and checks that every record is keyed by
// the bare form of its creator handle.
func ParseSeed(data []byte) (Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal seed")
	}
	for key, rec := range ds {
		if strings.TrimSpace(rec.Creator.Name) == "" {
			return nil, eris.Errorf("registry: seed %q has no creator name", key)
		}
		if model.BareHandle(rec.Creator.Handle) != key {
			return nil, eris.Errorf("registry: seed key %q does not match handle %q", key, rec.Creator.Handle)
		}
		for i := range rec.Claims {
			if !rec.Claims[i].Status.IsVerification() && rec.Claims[i].Status != model.StatusPendingVerification {
				return nil, eris.Errorf("registry: seed %q claim %q has unknown status %q", key, rec.Claims[i].ID, rec.Claims[i].Status)
			}
			if rec.Claims[i].MarketData == nil {
				rec.Claims[i].MarketData = []model.MarketDataPoint{}
			}
		}
		ds[key] = rec
	}
	return ds, nil
}
