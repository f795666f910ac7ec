package config

import (
	"flag"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestResolveFailsWithoutStorage(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String(StorageFlag.Name, "", "")
	ctx := cli.NewContext(cli.NewApp(), set, nil)

	if _, err := Resolve(ctx); err == nil {
		t.Fatalf("expected Resolve to fail when --storage is unset")
	}
}

func TestResolveReadsStorageFlag(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String(StorageFlag.Name, "file:///tmp/repo", "")
	ctx := cli.NewContext(cli.NewApp(), set, nil)

	got, err := Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.URL != "file:///tmp/repo" {
		t.Fatalf("expected resolved URL, got %q", got.URL)
	}
}
