package config

import "testing"

func validConfig() Config {
	cfg := Config{
		Service: ServiceConfig{Name: "Postgres", Environment: "PROD", PlanID: "pt-X"},
		Storage: StorageConfig{Bucket: "metering"},
		Billing: BillingConfig{ClientID: "cid", ClientSecret: "secret"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Service.Cloud != "aws" {
		t.Errorf("expected Cloud=aws, got %q", cfg.Service.Cloud)
	}
	if cfg.Storage.UsagePrefix != "omnistrate-metering" {
		t.Errorf("expected UsagePrefix='omnistrate-metering', got %q", cfg.Storage.UsagePrefix)
	}
	if cfg.Storage.StateKey != "metering_state.json" {
		t.Errorf("expected StateKey='metering_state.json', got %q", cfg.Storage.StateKey)
	}
	if cfg.Billing.BaseURL != "https://api.clazar.io" {
		t.Errorf("expected default base URL, got %q", cfg.Billing.BaseURL)
	}
	if cfg.Billing.TimeoutSec != 30 {
		t.Errorf("expected TimeoutSec=30, got %d", cfg.Billing.TimeoutSec)
	}
	if cfg.Pipeline.MaxWindowsPerRun != 1 {
		t.Errorf("expected MaxWindowsPerRun=1, got %d", cfg.Pipeline.MaxWindowsPerRun)
	}
	if cfg.Pipeline.MaxRetries != 5 {
		t.Errorf("expected MaxRetries=5, got %d", cfg.Pipeline.MaxRetries)
	}
	if cfg.Pipeline.RetryPolicy != "auto" {
		t.Errorf("expected RetryPolicy=auto, got %q", cfg.Pipeline.RetryPolicy)
	}
	if len(cfg.Pipeline.RawDimensions) != 3 {
		t.Errorf("expected 3 default raw dimensions, got %v", cfg.Pipeline.RawDimensions)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected Port=9090, got %d", cfg.HTTP.Port)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		Service:  ServiceConfig{Cloud: "gcp"},
		Storage:  StorageConfig{UsagePrefix: "custom-prefix", StateKey: "custom.json"},
		Pipeline: PipelineConfig{MaxWindowsPerRun: 6, MaxRetries: 2, RetryPolicy: "manual", RawDimensions: []string{"gpu_hours"}},
		HTTP:     HTTPConfig{Port: 8080},
	}
	cfg.ApplyDefaults()

	if cfg.Service.Cloud != "gcp" {
		t.Errorf("expected Cloud=gcp, got %q", cfg.Service.Cloud)
	}
	if cfg.Storage.UsagePrefix != "custom-prefix" {
		t.Errorf("expected UsagePrefix='custom-prefix', got %q", cfg.Storage.UsagePrefix)
	}
	if cfg.Pipeline.MaxWindowsPerRun != 6 {
		t.Errorf("expected MaxWindowsPerRun=6, got %d", cfg.Pipeline.MaxWindowsPerRun)
	}
	if cfg.Pipeline.RetryPolicy != "manual" {
		t.Errorf("expected RetryPolicy=manual, got %q", cfg.Pipeline.RetryPolicy)
	}
	if len(cfg.Pipeline.RawDimensions) != 1 || cfg.Pipeline.RawDimensions[0] != "gpu_hours" {
		t.Errorf("expected custom raw dimensions kept, got %v", cfg.Pipeline.RawDimensions)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected Port=8080, got %d", cfg.HTTP.Port)
	}
}

func TestApplyDefaults_LockKey(t *testing.T) {
	cfg := Config{
		Service: ServiceConfig{Name: "Postgres", Environment: "PROD", PlanID: "pt-X"},
		Lock:    LockConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()

	if cfg.Lock.Key != "meterd:lock:Postgres:PROD:pt-X" {
		t.Errorf("lock key = %q", cfg.Lock.Key)
	}
	if cfg.Lock.TTLSeconds != 3600 {
		t.Errorf("lock ttl = %d", cfg.Lock.TTLSeconds)
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingServiceIdentity(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) { c.Service.Name = "" },
		func(c *Config) { c.Service.Environment = "" },
		func(c *Config) { c.Service.PlanID = "" },
	} {
		cfg := validConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for incomplete service identity: %+v", cfg.Service)
		}
	}
}

func TestValidate_MissingBucket(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Bucket = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

func TestValidate_InvalidRetryPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.RetryPolicy = "sometimes"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid retry policy")
	}
	expected := `pipeline.retry_policy must be "auto" or "manual", got "sometimes"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_IncompleteCustomDimension(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.CustomDimensions = []CustomDimensionConfig{{Name: "cpu_half_hours"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for custom dimension without formula")
	}
}

func TestValidate_CredentialsRequiredOutsideDryRun(t *testing.T) {
	cfg := validConfig()
	cfg.Billing.ClientID = ""
	cfg.Billing.AccessToken = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing billing credentials")
	}

	cfg.Pipeline.DryRun = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dry run must not require credentials: %v", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("METERD_TEST_BUCKET", "from-env")

	data := expandEnvVars([]byte("bucket: ${METERD_TEST_BUCKET}\nregion: ${METERD_TEST_REGION:-us-east-1}"))
	want := "bucket: from-env\nregion: us-east-1"
	if string(data) != want {
		t.Errorf("expanded = %q, want %q", data, want)
	}
}
