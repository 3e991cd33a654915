package crosschain

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Registry holds one CrossChainClient per configured branch, built
// once at startup from the `-mainchaincfg`/`-branchcfg` JSON object
// spec.md §6 describes and never mutated afterward — branch topology
// does not change while the daemon runs.
type Registry struct {
	clients map[uint32]*CrossChainClient
}

// LoadRegistry reads a JSON array of BranchConfig entries from the
// viper key configKey (populated by binding a `-branchcfg` command
// flag to a config file path) and builds one client per entry.
func LoadRegistry(v *viper.Viper, configKey string) (*Registry, error) {
	var configs []BranchConfig
	if err := v.UnmarshalKey(configKey, &configs); err != nil {
		return nil, errors.Wrapf(err, "crosschain: decode %s", configKey)
	}
	clients := make(map[uint32]*CrossChainClient, len(configs))
	for _, cfg := range configs {
		if _, dup := clients[cfg.BranchID]; dup {
			return nil, errors.Errorf("crosschain: duplicate branchid %d in %s", cfg.BranchID, configKey)
		}
		clients[cfg.BranchID] = NewCrossChainClient(cfg)
	}
	return &Registry{clients: clients}, nil
}

// Client returns the configured client for branchID, or false if no
// -branchcfg entry names it.
func (r *Registry) Client(branchID uint32) (*CrossChainClient, bool) {
	c, ok := r.clients[branchID]
	return c, ok
}
