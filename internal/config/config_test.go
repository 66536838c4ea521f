package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const validYaml = `
kind: agentsim/v1
def:
  simulation:
    steps: 200
    logDirectory: ./snapshots
    randomSeed: 7
  hyperParams:
    - key: epsilon
      val: 0.1
  dashboard:
    addr: ":9090"
`

const unknownKeyYaml = `
kind: agentsim/v1
def:
  simulation:
    steps: 200
  bogus:
    field: 1
`

const wrongKindYaml = `
kind: other/v1
def:
  simulation:
    steps: 200
`

func writeFile(t *testing.T, contents string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFromYaml(t *testing.T) {
	Convey("Given a well-formed config file", t, func() {
		path := writeFile(t, validYaml)

		Convey("FromYaml decodes it and applies scheduler defaults", func() {
			cfg, err := FromYaml(path)
			So(err, ShouldBeNil)
			So(cfg.Simulation.Steps, ShouldEqual, 200)
			So(cfg.Simulation.SnapshotInterval, ShouldEqual, 50)
			So(cfg.Simulation.ValidationInterval, ShouldEqual, 10)
			So(cfg.Simulation.ScaffoldConcurrency, ShouldEqual, 1)
			So(cfg.GetHyperParamOrDefault("epsilon", 0), ShouldEqual, 0.1)
			So(cfg.GetHyperParamOrDefault("missing", 0.5), ShouldEqual, 0.5)
			So(cfg.Dashboard.Addr, ShouldEqual, ":9090")
		})
	})

	Convey("Given a config file with an unknown def key", t, func() {
		path := writeFile(t, unknownKeyYaml)

		Convey("FromYaml rejects it", func() {
			_, err := FromYaml(path)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a config file with an unsupported kind", t, func() {
		path := writeFile(t, wrongKindYaml)

		Convey("FromYaml rejects it", func() {
			_, err := FromYaml(path)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a config with no deadline", t, func() {
		cfg := &Config{}

		Convey("WithDeadline returns a cancelable context with no timeout", func() {
			ctx, cancel, err := cfg.WithDeadline(context.Background())
			So(err, ShouldBeNil)
			So(ctx, ShouldNotBeNil)
			cancel()
		})
	})
}
