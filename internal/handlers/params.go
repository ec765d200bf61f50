package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func paramID(c *fiber.Ctx, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func queryInt(c *fiber.Ctx, name string, def int) int {
	if s := c.Query(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
