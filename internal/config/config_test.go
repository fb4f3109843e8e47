package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WORKER_METRICS_ADDR", "")
	t.Setenv("STORE_DRIVER", "")
	c := Load()
	if c.WorkerMetricsAddr != ":9091" || c.StoreDriver != "postgres" || !c.TaxRate.Equal(defaultTaxRate) {
		t.Fatalf("config = %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("WORKER_METRICS_ADDR", ":19091")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SWEEP_INTERVAL", "5s")
	c := Load()
	if c.WorkerMetricsAddr != ":19091" || len(c.KafkaBrokers) != 2 || c.KafkaBrokers[1] != "k2:9092" || c.SweepInterval.Seconds() != 5 {
		t.Fatalf("config = %+v", c)
	}
}

func TestValidateReportsRejectedSettings(t *testing.T) {
	t.Setenv("TAX_RATE", "-0.1")
	t.Setenv("STORE_DRIVER", "mongo")
	err := Load().Validate()
	if err == nil || !strings.Contains(err.Error(), "TAX_RATE") || !strings.Contains(err.Error(), "STORE_DRIVER") {
		t.Fatalf("err = %v", err)
	}
}
