package catalog_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/promille/internal/domain/catalog"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefaultCatalog(t *testing.T) {
	Convey("Given the default catalog", t, func() {
		c := catalog.Default()

		Convey("Then categories keep their canonical order", func() {
			So(c.Tags(), ShouldResemble, []catalog.Tag{"beer", "vodka", "whiskey", "other", "blunt"})
		})

		Convey("Then windows and symbols match the built-in table", func() {
			So(c.Window("beer"), ShouldEqual, 3*time.Hour)
			So(c.Window("blunt"), ShouldEqual, 4*time.Hour)
			So(c.Symbol("whiskey"), ShouldEqual, "🥃")
			So(c.Shortest(), ShouldEqual, 2*time.Hour)
		})

		Convey("When looking up by alias, symbol or mixed case", func() {
			byAlias, ok1 := c.Lookup("Piwo")
			bySymbol, ok2 := c.Lookup("🍃")
			byTag, ok3 := c.Lookup(" VODKA ")

			Convey("Then each resolves to its category", func() {
				So(ok1, ShouldBeTrue)
				So(byAlias.Tag, ShouldEqual, catalog.Tag("beer"))
				So(ok2, ShouldBeTrue)
				So(bySymbol.Tag, ShouldEqual, catalog.Tag("blunt"))
				So(ok3, ShouldBeTrue)
				So(byTag.Tag, ShouldEqual, catalog.Tag("vodka"))
			})
		})

		Convey("When using Get with an alias", func() {
			_, ok := c.Get("piwo")

			Convey("Then only exact tags are accepted", func() {
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When looking up an unknown key", func() {
			_, ok := c.Lookup("mead")

			Convey("Then it is not found", func() {
				So(ok, ShouldBeFalse)
				So(c.Window("mead"), ShouldEqual, 0)
				So(c.Symbol("mead"), ShouldEqual, "")
			})
		})
	})
}

func TestNewCatalogValidation(t *testing.T) {
	Convey("Given category definitions", t, func() {
		Convey("When the list is empty", func() {
			_, err := catalog.New(nil)
			So(errors.Is(err, catalog.ErrInvalidCatalog), ShouldBeTrue)
		})

		Convey("When a window is not positive", func() {
			_, err := catalog.New([]catalog.Category{{Tag: "beer", Symbol: "🍺"}})
			So(errors.Is(err, catalog.ErrInvalidCatalog), ShouldBeTrue)
		})

		Convey("When a symbol is missing", func() {
			_, err := catalog.New([]catalog.Category{{Tag: "beer", Window: time.Hour}})
			So(errors.Is(err, catalog.ErrInvalidCatalog), ShouldBeTrue)
		})

		Convey("When two categories share a key", func() {
			_, err := catalog.New([]catalog.Category{
				{Tag: "beer", Symbol: "🍺", Window: time.Hour},
				{Tag: "lager", Symbol: "🍺", Window: time.Hour},
			})
			So(errors.Is(err, catalog.ErrInvalidCatalog), ShouldBeTrue)
		})

		Convey("When definitions are valid", func() {
			c, err := catalog.New([]catalog.Category{
				{Tag: " Cider ", Symbol: "🍏", Window: 90 * time.Minute},
			})

			Convey("Then tags are normalized", func() {
				So(err, ShouldBeNil)
				So(c.Tags(), ShouldResemble, []catalog.Tag{"cider"})
				So(c.Names(), ShouldEqual, "cider")
			})
		})
	})
}
