package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arla-sim/agentsim/internal/ecs"
	. "github.com/smartystreets/goconvey/convey"
)

const tagHP ecs.TypeTag = "hp"

type hpComponent struct {
	value int
}

func (h *hpComponent) TypeTag() ecs.TypeTag      { return tagHP }
func (h *hpComponent) ToDict() map[string]any    { return map[string]any{"value": h.value} }
func (h *hpComponent) Validate(ecs.EntityID) (bool, []string) { return true, nil }

func hpFactory() ecs.ComponentFactory {
	return ecs.ComponentFactoryFunc(func(tag ecs.TypeTag, data map[string]any) (ecs.Component, error) {
		switch tag {
		case tagHP:
			v, _ := data["value"].(float64) // json numbers decode as float64
			return &hpComponent{value: int(v)}, nil
		default:
			return nil, &ErrCorrupt{Detail: "unknown component tag " + string(tag)}
		}
	})
}

type fakeEnv struct {
	label string
}

func (e *fakeEnv) ToDict() map[string]any { return map[string]any{"label": e.label} }
func (e *fakeEnv) RestoreFromDict(data map[string]any) error {
	e.label, _ = data["label"].(string)
	return nil
}

func TestSnapshotBuildAndRestore(t *testing.T) {
	Convey("Given a store with two entities and an environment", t, func() {
		store := ecs.NewStore()
		So(store.AddEntity("a"), ShouldBeNil)
		So(store.AddEntity("b"), ShouldBeNil)
		So(store.AddComponent("a", &hpComponent{value: 7}), ShouldBeNil)
		So(store.AddComponent("b", &hpComponent{value: 3}), ShouldBeNil)

		env := &fakeEnv{label: "meadow"}
		seed := int64(42)
		snapStore := NewStore()

		Convey("Build produces the fixed top-level key set", func() {
			snap := snapStore.Build(store, env, 5, "sim-1", &seed)
			So(snap.Tick, ShouldEqual, 5)
			So(snap.SimulationID, ShouldEqual, "sim-1")
			So(*snap.Seed, ShouldEqual, int64(42))
			So(snap.Entities, ShouldContainKey, "a")
			So(snap.Entities, ShouldContainKey, "b")
			So(snap.Environment["label"], ShouldEqual, "meadow")
		})

		Convey("Save then Load round-trips through disk", func() {
			dir := t.TempDir()
			snap := snapStore.Build(store, env, 5, "sim-1", &seed)
			So(snapStore.Save(dir, snap), ShouldBeNil)

			path := filepath.Join(dir, Filename(5))
			_, err := os.Stat(path)
			So(err, ShouldBeNil)

			loaded, err := snapStore.Load(path)
			So(err, ShouldBeNil)
			So(loaded.Tick, ShouldEqual, 5)
			So(loaded.Entities["a"]["hp"]["value"], ShouldEqual, 7)
		})

		Convey("Restore rebuilds an equivalent store and applies the environment dict", func() {
			snap := snapStore.Build(store, env, 5, "sim-1", &seed)

			restoredEnv := &fakeEnv{}
			restored, err := snapStore.Restore(snap, hpFactory(), restoredEnv)
			So(err, ShouldBeNil)
			So(restored.Len(), ShouldEqual, 2)

			c, ok := restored.GetComponent("a", tagHP)
			So(ok, ShouldBeTrue)
			So(c.(*hpComponent).value, ShouldEqual, 7)
			So(restoredEnv.label, ShouldEqual, "meadow")
		})

		Convey("Restore returns ErrCorrupt when the factory rejects a component and builds nothing", func() {
			snap := snapStore.Build(store, env, 5, "sim-1", &seed)
			badFactory := ecs.ComponentFactoryFunc(func(tag ecs.TypeTag, data map[string]any) (ecs.Component, error) {
				return nil, &ErrCorrupt{Detail: "boom"}
			})
			restored, err := snapStore.Restore(snap, badFactory, nil)
			So(restored, ShouldBeNil)
			So(err, ShouldNotBeNil)
			var corrupt *ErrCorrupt
			So(asErrCorrupt(err, &corrupt), ShouldBeTrue)
		})
	})
}

func asErrCorrupt(err error, target **ErrCorrupt) bool {
	c, ok := err.(*ErrCorrupt)
	if ok {
		*target = c
	}
	return ok
}
