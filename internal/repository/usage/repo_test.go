package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meterd/internal/domain"
)

type mockStore struct {
	listFn func(ctx context.Context, prefix string) ([]string, error)
	getFn  func(ctx context.Context, key string) ([]byte, error)
}

func (m *mockStore) List(ctx context.Context, prefix string) ([]string, error) {
	return m.listFn(ctx, prefix)
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	return m.getFn(ctx, key)
}

var testKey = domain.ServiceKey{Service: "Postgres", Environment: "PROD", PlanID: "pt-X"}

func TestEvents_PrefixLayout(t *testing.T) {
	var gotPrefix string
	store := &mockStore{
		listFn: func(_ context.Context, prefix string) ([]string, error) {
			gotPrefix = prefix
			return nil, nil
		},
	}
	repo := New(store, "omnistrate-metering/", zap.NewNop())

	events, err := repo.Events(context.Background(), testKey, domain.Window{Year: 2025, Month: time.June})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("events = %d, want 0", len(events))
	}
	if gotPrefix != "omnistrate-metering/Postgres/PROD/pt-X/2025/06/" {
		t.Errorf("prefix = %q", gotPrefix)
	}
}

func TestEvents_ParsesRecords(t *testing.T) {
	objects := map[string][]byte{
		"p/2025/06/01.json": []byte(`[
			{"externalPayerId": "contract-a", "dimension": "cpu_core_hours", "value": 1.5},
			{"externalPayerId": "contract-a", "dimension": "memory_byte_hours", "value": "1024"}
		]`),
		"p/2025/06/02.json": []byte(`[
			{"externalPayerId": "contract-b", "dimension": "cpu_core_hours", "value": 2}
		]`),
		"p/2025/06/readme.txt": []byte("not usage data"),
	}
	store := &mockStore{
		listFn: func(context.Context, string) ([]string, error) {
			return []string{"p/2025/06/01.json", "p/2025/06/02.json", "p/2025/06/readme.txt"}, nil
		},
		getFn: func(_ context.Context, key string) ([]byte, error) {
			data, ok := objects[key]
			if !ok {
				t.Fatalf("unexpected get %q", key)
			}
			return data, nil
		},
	}
	repo := New(store, "omnistrate-metering", zap.NewNop())

	events, err := repo.Events(context.Background(), testKey, domain.Window{Year: 2025, Month: time.June})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].ContractID != "contract-a" || events[0].Dimension != "cpu_core_hours" {
		t.Errorf("first event = %+v", events[0])
	}
	if events[0].Value.String() != "1.5" {
		t.Errorf("first value = %s", events[0].Value)
	}
}

func TestEvents_SkipsMalformed(t *testing.T) {
	objects := map[string][]byte{
		"p/a.json": []byte(`not json`),
		"p/b.json": []byte(`[
			{"dimension": "cpu_core_hours", "value": 1},
			{"externalPayerId": "contract-a", "value": 1},
			{"externalPayerId": "contract-a", "dimension": "cpu_core_hours", "value": "oops"},
			42,
			{"externalPayerId": "contract-a", "dimension": "cpu_core_hours", "value": 7}
		]`),
	}
	var getErr error
	store := &mockStore{
		listFn: func(context.Context, string) ([]string, error) {
			return []string{"p/a.json", "p/b.json", "p/c.json"}, nil
		},
		getFn: func(_ context.Context, key string) ([]byte, error) {
			if key == "p/c.json" {
				getErr = errors.New("transient read failure")
				return nil, getErr
			}
			return objects[key], nil
		},
	}
	repo := New(store, "omnistrate-metering", zap.NewNop())

	events, err := repo.Events(context.Background(), testKey, domain.Window{Year: 2025, Month: time.June})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Value.String() != "7" {
		t.Errorf("value = %s", events[0].Value)
	}
}

func TestEvents_ListFailureIsFatal(t *testing.T) {
	store := &mockStore{
		listFn: func(context.Context, string) ([]string, error) {
			return nil, errors.New("access denied")
		},
	}
	repo := New(store, "omnistrate-metering", zap.NewNop())

	if _, err := repo.Events(context.Background(), testKey, domain.Window{Year: 2025, Month: time.June}); err == nil {
		t.Fatal("expected error")
	}
}
