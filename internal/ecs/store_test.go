package ecs

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type fakeComponent struct {
	tag   TypeTag
	value int
}

func (f fakeComponent) TypeTag() TypeTag { return f.tag }
func (f fakeComponent) ToDict() map[string]any {
	return map[string]any{"value": f.value}
}
func (f fakeComponent) Validate(EntityID) (bool, []string) { return true, nil }

func TestStore(t *testing.T) {
	Convey("Given an empty store", t, func() {
		store := NewStore()

		Convey("AddEntity then AddEntity with the same id fails", func() {
			So(store.AddEntity("a"), ShouldBeNil)
			err := store.AddEntity("a")
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrDuplicateEntity), ShouldBeTrue)
		})

		Convey("AddComponent on an unknown entity fails", func() {
			err := store.AddComponent("ghost", fakeComponent{tag: "hp", value: 1})
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrUnknownEntity), ShouldBeTrue)
		})

		Convey("RemoveEntity on an absent entity is a no-op", func() {
			So(func() { store.RemoveEntity("nope") }, ShouldNotPanic)
		})

		Convey("When three entities are added in order a, b, c", func() {
			So(store.AddEntity("a"), ShouldBeNil)
			So(store.AddEntity("b"), ShouldBeNil)
			So(store.AddEntity("c"), ShouldBeNil)

			Convey("EntitiesWith() with no tags returns them in insertion order", func() {
				all := store.EntitiesWith()
				So(len(all), ShouldEqual, 3)
				So(all[0].EntityID, ShouldEqual, EntityID("a"))
				So(all[1].EntityID, ShouldEqual, EntityID("b"))
				So(all[2].EntityID, ShouldEqual, EntityID("c"))
			})

			Convey("Only entities holding every requested type are returned", func() {
				So(store.AddComponent("a", fakeComponent{tag: "hp", value: 1}), ShouldBeNil)
				So(store.AddComponent("a", fakeComponent{tag: "mana", value: 2}), ShouldBeNil)
				So(store.AddComponent("b", fakeComponent{tag: "hp", value: 3}), ShouldBeNil)

				matched := store.EntitiesWith("hp", "mana")
				So(len(matched), ShouldEqual, 1)
				So(matched[0].EntityID, ShouldEqual, EntityID("a"))
				So(matched[0].Components["hp"].(fakeComponent).value, ShouldEqual, 1)
			})

			Convey("AddComponent replaces an existing component of the same type", func() {
				So(store.AddComponent("a", fakeComponent{tag: "hp", value: 1}), ShouldBeNil)
				So(store.AddComponent("a", fakeComponent{tag: "hp", value: 99}), ShouldBeNil)
				c, ok := store.GetComponent("a", "hp")
				So(ok, ShouldBeTrue)
				So(c.(fakeComponent).value, ShouldEqual, 99)
			})

			Convey("Removing the middle entity preserves order of the rest", func() {
				store.RemoveEntity("b")
				ids := store.EntityIDs()
				So(ids, ShouldResemble, []EntityID{"a", "c"})
				So(store.HasEntity("b"), ShouldBeFalse)
			})
		})
	})
}
