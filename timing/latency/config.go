package latency

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/dualarm/insts"
	"github.com/sarchlab/dualarm/timing/cache"
)

// CoreTiming holds the bus and pipeline timing of one core.
type CoreTiming struct {
	// Fetch32Cycles is the cost of a word code fetch that misses or bypasses
	// the instruction cache. Default: 1 on core A, 3 on core B.
	Fetch32Cycles uint32 `json:"fetch32_cycles"`

	// Fetch16Cycles is the cost of a halfword code fetch. Default: 1.
	Fetch16Cycles uint32 `json:"fetch16_cycles"`

	// OverlapFetch makes the next fetch overlap execution, so a step costs
	// max(execute, fetch) instead of their sum. Default: true on core A.
	OverlapFetch bool `json:"overlap_fetch"`

	// InstructionCache routes code fetches through the instruction cache.
	// Default: true on core A.
	InstructionCache bool `json:"instruction_cache"`
}

// TimingConfig holds the timing model of the dual-core complex.
type TimingConfig struct {
	// ALULatency is the execution latency for data processing and PSR
	// transfers. Default: 1 cycle.
	ALULatency uint32 `json:"alu_latency"`

	// PCWritePenalty is added when an instruction writes R15 and the
	// pipeline refills. Default: 2 cycles.
	PCWritePenalty uint32 `json:"pc_write_penalty"`

	// BranchLatency is the latency of branches. Default: 3 cycles.
	BranchLatency uint32 `json:"branch_latency"`

	// LoadLatency is the latency of single loads. Default: 3 cycles.
	LoadLatency uint32 `json:"load_latency"`

	// StoreLatency is the latency of single stores. Default: 2 cycles.
	StoreLatency uint32 `json:"store_latency"`

	// MultiplyLatency is the base latency of MUL; MLA adds one.
	// Default: 2 cycles.
	MultiplyLatency uint32 `json:"multiply_latency"`

	// SWILatency is the latency of a software interrupt. Default: 3 cycles.
	SWILatency uint32 `json:"swi_latency"`

	// ClockRatio is how many core A cycles elapse per core B cycle.
	// Default: 2.
	ClockRatio uint32 `json:"clock_ratio"`

	CoreA CoreTiming `json:"core_a"`
	CoreB CoreTiming `json:"core_b"`

	// ICache configures the instruction cache of core A.
	ICache cache.Config `json:"icache"`
}

// DefaultTimingConfig returns the reference timing.
func DefaultTimingConfig() *TimingConfig {
	costs := insts.DefaultCosts()
	return &TimingConfig{
		ALULatency:      costs.ALU,
		PCWritePenalty:  costs.PCWrite,
		BranchLatency:   costs.Branch,
		LoadLatency:     costs.Load,
		StoreLatency:    costs.Store,
		MultiplyLatency: costs.Multiply,
		SWILatency:      costs.SWI,
		ClockRatio:      2,
		CoreA: CoreTiming{
			Fetch32Cycles:    1,
			Fetch16Cycles:    1,
			OverlapFetch:     true,
			InstructionCache: true,
		},
		CoreB: CoreTiming{
			Fetch32Cycles: 3,
			Fetch16Cycles: 1,
		},
		ICache: cache.DefaultICacheConfig(),
	}
}

// LoadConfig loads a TimingConfig from a JSON file. Missing fields keep
// their defaults.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON file.
func (c *TimingConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that the latencies and the cache geometry are usable.
func (c *TimingConfig) Validate() error {
	if c.ALULatency == 0 {
		return fmt.Errorf("alu_latency must be > 0")
	}
	if c.BranchLatency == 0 {
		return fmt.Errorf("branch_latency must be > 0")
	}
	if c.LoadLatency == 0 {
		return fmt.Errorf("load_latency must be > 0")
	}
	if c.StoreLatency == 0 {
		return fmt.Errorf("store_latency must be > 0")
	}
	if c.MultiplyLatency == 0 {
		return fmt.Errorf("multiply_latency must be > 0")
	}
	if c.SWILatency == 0 {
		return fmt.Errorf("swi_latency must be > 0")
	}
	if c.ClockRatio == 0 {
		return fmt.Errorf("clock_ratio must be > 0")
	}
	if c.CoreA.InstructionCache {
		if err := c.ICache.Validate(); err != nil {
			return fmt.Errorf("icache: %w", err)
		}
	}
	return nil
}

// Clone returns a deep copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	return &clone
}

// Costs returns the execute costs charged by the opcode tables.
func (c *TimingConfig) Costs() insts.Costs {
	return insts.Costs{
		ALU:      c.ALULatency,
		PCWrite:  c.PCWritePenalty,
		Branch:   c.BranchLatency,
		Load:     c.LoadLatency,
		Store:    c.StoreLatency,
		Multiply: c.MultiplyLatency,
		SWI:      c.SWILatency,
	}
}
