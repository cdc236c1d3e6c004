package driver

import (
	"fmt"

	"github.com/magiconair/properties"
)

// Key orderings for generated record keys.
const (
	OrderHashed  = "hashed"
	OrderOrdered = "ordered"
)

// WorkloadConfig defines the driver parameters read from the same property
// set that configures the bindings.
type WorkloadConfig struct {
	Table          string `properties:"table,default=usertable"`
	RecordCount    int64  `properties:"recordcount,default=1000"`    // records inserted by load
	OperationCount int64  `properties:"operationcount,default=1000"` // operations issued by run
	ThreadCount    int    `properties:"threadcount,default=1"`       // workers, one binding each
	Seed           int64  `properties:"seed,default=42"`             // RNG seed for deterministic behavior

	FieldCount     int  `properties:"fieldcount,default=10"`
	FieldLength    int  `properties:"fieldlength,default=100"` // bytes per field value
	ReadAllFields  bool `properties:"readallfields,default=true"`
	WriteAllFields bool `properties:"writeallfields,default=false"`

	ReadProportion   float64 `properties:"readproportion,default=0.95"`
	UpdateProportion float64 `properties:"updateproportion,default=0.05"`
	InsertProportion float64 `properties:"insertproportion,default=0"`
	ScanProportion   float64 `properties:"scanproportion,default=0"`
	DeleteProportion float64 `properties:"deleteproportion,default=0"`
	MaxScanLength    int     `properties:"maxscanlength,default=100"`

	InsertOrder string `properties:"insertorder,default=hashed"` // "hashed" or "ordered"
	KeysFile    string `properties:"keysfile,default="`          // written by load, read by run

	CheckTrials int `properties:"check.trials,default=100"`
}

// ParseWorkloadConfig decodes the driver parameters from p.
func ParseWorkloadConfig(p *properties.Properties) (WorkloadConfig, error) {
	var cfg WorkloadConfig
	if p == nil {
		p = properties.NewProperties()
	}
	if err := p.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("invalid workload properties: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c WorkloadConfig) validate() error {
	if c.Table == "" {
		return fmt.Errorf("table must not be empty")
	}
	if c.RecordCount < 0 || c.OperationCount < 0 {
		return fmt.Errorf("recordcount and operationcount must not be negative")
	}
	if c.ThreadCount < 1 {
		return fmt.Errorf("threadcount must be positive, got %d", c.ThreadCount)
	}
	if c.FieldCount < 1 || c.FieldLength < 0 {
		return fmt.Errorf("fieldcount must be positive and fieldlength not negative")
	}
	if c.MaxScanLength < 1 {
		return fmt.Errorf("maxscanlength must be positive, got %d", c.MaxScanLength)
	}
	if c.CheckTrials < 1 {
		return fmt.Errorf("check.trials must be positive, got %d", c.CheckTrials)
	}
	if c.InsertOrder != OrderHashed && c.InsertOrder != OrderOrdered {
		return fmt.Errorf("insertorder must be %q or %q, got %q", OrderHashed, OrderOrdered, c.InsertOrder)
	}

	total := 0.0
	for _, p := range c.proportions() {
		if p < 0 {
			return fmt.Errorf("operation proportions must not be negative")
		}
		total += p
	}
	if total <= 0 {
		return fmt.Errorf("at least one operation proportion must be positive")
	}
	return nil
}

// proportions is indexed by Op.
func (c WorkloadConfig) proportions() [numOps]float64 {
	return [numOps]float64{
		OpRead:   c.ReadProportion,
		OpUpdate: c.UpdateProportion,
		OpInsert: c.InsertProportion,
		OpScan:   c.ScanProportion,
		OpDelete: c.DeleteProportion,
	}
}
