package config

import "testing"

func TestClusteringNormalizeDefaults(t *testing.T) {
	c := ClusteringConfig{}.Normalize()
	if c.MinClusterSize != 2 || c.MinSamples != 1 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("normalized config must validate: %v", err)
	}
}

func TestClusteringValidateRejectsTinyClusters(t *testing.T) {
	c := ClusteringConfig{MinClusterSize: 1, MinSamples: 1}
	if err := c.Validate(); err == nil {
		t.Fatal("min_cluster_size of 1 must be rejected")
	}
}

func TestLocationsValidateBounds(t *testing.T) {
	if err := (LocationsConfig{MinConfidence: 1.5}).Validate(); err == nil {
		t.Fatal("min_confidence above 1 must be rejected")
	}
	if err := (LocationsConfig{MinConfidence: -0.1}).Validate(); err == nil {
		t.Fatal("negative min_confidence must be rejected")
	}
	if err := (LocationsConfig{MinConfidence: 0.3}).Validate(); err != nil {
		t.Fatalf("valid confidence rejected: %v", err)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", User: "u", Password: "p", DBName: "storyline"}
	want := "postgres://u:p@db:5432/storyline?sslmode=disable"
	if got := p.DSN(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	p.URL = "postgres://explicit"
	if got := p.DSN(); got != "postgres://explicit" {
		t.Fatalf("url must win, got %q", got)
	}
}

func TestServerNormalizeAddress(t *testing.T) {
	if got := (ServerConfig{}).Normalize().Address; got != ":10030" {
		t.Fatalf("default address: got %q", got)
	}
	if got := (ServerConfig{Address: "8080"}).Normalize().Address; got != ":8080" {
		t.Fatalf("bare port must gain colon, got %q", got)
	}
}

func TestLinkerNormalizeDefaults(t *testing.T) {
	l := LinkerConfig{}.Normalize()
	if l.TopN != 3 || l.LookbackDays != 1 || l.Model == "" {
		t.Fatalf("unexpected defaults: %+v", l)
	}
}
