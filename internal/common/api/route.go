package api

import "github.com/gofiber/fiber/v2"

// Route is implemented by every feature API and collected into the
// fx "routes" group so main can register them in one place.
type Route interface {
	Setup(app *fiber.App)
}
