package config

import "testing"

func TestRequire(t *testing.T) {
	var c Config
	if err := c.Require("CATALOG_API_TOKEN", ""); err == nil {
		t.Fatal("want error for empty value")
	}
	if err := c.Require("CATALOG_API_TOKEN", "   "); err == nil {
		t.Fatal("want error for blank value")
	}
	if err := c.Require("CATALOG_API_TOKEN", "tok"); err != nil {
		t.Fatalf("err: %v", err)
	}
}
