package subscription

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

const FreeTier = "free"

type Tier struct {
	Name        string `mapstructure:"name"`
	Rank        int    `mapstructure:"rank"`
	MaxServices int    `mapstructure:"max_services"`
	Unlimited   bool   `mapstructure:"unlimited"`
}

// PlanTable is the versioned tier to quota mapping injected into the Enforcer.
type PlanTable struct {
	Version string `mapstructure:"version"`
	Tiers   []Tier `mapstructure:"tiers"`
}

func DefaultPlanTable() PlanTable {
	return PlanTable{
		Version: "default-1",
		Tiers: []Tier{
			{Name: "free", Rank: 0, MaxServices: 5},
			{Name: "basic", Rank: 1, MaxServices: 15},
			{Name: "premium", Rank: 2, MaxServices: 50},
			{Name: "pro", Rank: 3, Unlimited: true},
			{Name: "enterprise", Rank: 4, Unlimited: true},
		},
	}
}

// LoadPlanTable reads a YAML plan file. A missing file yields the default table;
// PLANS_VERSION in the environment overrides the file's version label.
func LoadPlanTable(path string) (PlanTable, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PLANS")
	v.AutomaticEnv()

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return DefaultPlanTable(), nil
	}
	if err := v.ReadInConfig(); err != nil {
		return PlanTable{}, fmt.Errorf("read plan table %s: %w", path, err)
	}

	var t PlanTable
	if err := v.Unmarshal(&t); err != nil {
		return PlanTable{}, fmt.Errorf("decode plan table %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return PlanTable{}, err
	}
	return t, nil
}

// Validate checks the table is usable: a free tier exists, names are unique and
// capped tiers have a non-negative cap.
func (t PlanTable) Validate() error {
	if t.Version == "" {
		return errors.New("plan table: version is required")
	}
	seen := map[string]bool{}
	for _, tier := range t.Tiers {
		name := strings.ToLower(tier.Name)
		if name == "" {
			return errors.New("plan table: tier without name")
		}
		if seen[name] {
			return fmt.Errorf("plan table: duplicate tier %q", name)
		}
		seen[name] = true
		if !tier.Unlimited && tier.MaxServices < 0 {
			return fmt.Errorf("plan table: tier %q has negative max_services", name)
		}
	}
	if !seen[FreeTier] {
		return errors.New("plan table: free tier is required")
	}
	return nil
}

// Lookup finds a tier by name, case-insensitively.
func (t PlanTable) Lookup(name string) (Tier, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, tier := range t.Tiers {
		if strings.ToLower(tier.Name) == name {
			return tier, true
		}
	}
	return Tier{}, false
}

// Ordered returns the tiers sorted by rank.
func (t PlanTable) Ordered() []Tier {
	out := append([]Tier(nil), t.Tiers...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}
